package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sqlverify/internal/domain"
	"sqlverify/internal/oracle"
	"sqlverify/internal/schema"
)

// verifyReport pairs a response file with its verification outcome for
// batch output.
type verifyReport struct {
	Response string                     `json:"response"`
	Report   *domain.VerificationReport `json:"report"`
}

func newVerifyCmd() *cobra.Command {
	var (
		schemaPath  string
		rigor       string
		driver      string
		dialect     string
		timeout     time.Duration
		seed        int64
		rows        int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "verify <original.sql> <response>...",
		Short: "Verify one or more rewrite proposals against the original query",
		Long: `Runs the verification pipeline for each response file: payload parsing,
assembly, structural checks, and (at standard/full rigor) execution of both
queries over synthetic witness data in a disposable sandbox.

Each response is verified independently; batches run concurrently, one
sandbox per verification.`,
		Example: `  sqlverify verify query.sql response.txt --schema schema.yaml
  sqlverify verify query.sql candidates/*.json --schema schema.yaml --rigor standard
  sqlverify verify query.sql response.txt --rigor structural`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Rigor(rigor)
			if !r.Valid() {
				return fmt.Errorf("invalid rigor %q (want structural, standard or full)", rigor)
			}

			originalSQL, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read original SQL: %w", err)
			}

			var sch *domain.Schema
			if schemaPath != "" {
				sch, err = schema.LoadFile(schemaPath)
				if err != nil {
					return err
				}
			} else if r != domain.RigorStructural {
				return fmt.Errorf("--schema is required for rigor %q", r)
			}

			responses := args[1:]
			reports := make([]verifyReport, len(responses))

			// Each verification owns its own sandbox and payload, so
			// independent candidates can race safely.
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(concurrency)
			var mu sync.Mutex
			for i, path := range responses {
				g.Go(func() error {
					response, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("read response %s: %w", path, err)
					}
					o := oracle.New(oracle.Options{
						SandboxDriver: driver,
						QueryTimeout:  timeout,
						WitnessSeed:   seed,
						WitnessRows:   rows,
						Dialect:       dialect,
						Logger:        slog.Default().With("response", path),
					})
					report := o.Verify(ctx, string(originalSQL), string(response), sch, r)
					mu.Lock()
					reports[i] = verifyReport{Response: path, Report: report}
					mu.Unlock()
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			sort.SliceStable(reports, func(i, j int) bool { return reports[i].Response < reports[j].Response })

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if len(reports) == 1 {
				return enc.Encode(reports[0].Report)
			}
			return enc.Encode(reports)
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "YAML schema description of the tables the query touches")
	cmd.Flags().StringVar(&rigor, "rigor", string(domain.RigorFull), "Verification rigor: structural, standard, or full")
	cmd.Flags().StringVar(&driver, "driver", "duckdb", "Sandbox engine: duckdb or sqlite3")
	cmd.Flags().StringVar(&dialect, "dialect", "postgres", "SQL dialect label for reports")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Per-query execution timeout")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Base seed for witness data generation")
	cmd.Flags().IntVar(&rows, "rows", 50, "Default rows per table in witness data")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Max concurrent verifications in batch mode")

	return cmd
}
