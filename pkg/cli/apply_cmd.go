package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sqlverify/internal/oracle"
)

func newApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <original.sql> <response>",
		Short: "Assemble the rewritten SQL from an agent response",
		Long:  "Extracts a rewrite payload (or bare SQL block) from the agent response file and assembles the rewritten statement, without verifying it.",
		Example: `  sqlverify apply query.sql response.txt
  sqlverify apply query.sql proposal.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			originalSQL, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read original SQL: %w", err)
			}
			response, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}

			o := oracle.New(oracle.Options{})
			result := o.Apply(string(originalSQL), string(response))

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("apply failed: %s", result.Error)
			}
			return nil
		},
	}
}
