package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout redirects os.Stdout to a pipe and returns a function that
// restores stdout and returns the captured output.
func captureStdout(t *testing.T) func() string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = buf.ReadFrom(r)
		close(done)
	}()

	return func() string {
		_ = w.Close()
		<-done
		os.Stdout = old
		return buf.String()
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const testSchemaYAML = `
tables:
  - name: orders
    primary_key: o_id
    row_count: 10
    columns:
      - {name: o_id, type: integer}
      - {name: o_total, type: decimal}
`

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	restore := captureStdout(t)
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(os.Stderr)
	cmd.SetErr(os.Stderr)
	err := cmd.Execute()
	return restore(), err
}

func TestApplyCmd_SQLFence(t *testing.T) {
	dir := t.TempDir()
	orig := writeFile(t, dir, "orig.sql", "SELECT o_id FROM orders")
	resp := writeFile(t, dir, "resp.txt", "```sql\nSELECT o_id FROM orders WHERE o_id > 0\n```")

	out, err := runCommand(t, "apply", orig, resp)
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "raw_sql_rewrite", result["transform"])
	assert.Equal(t, "SELECT o_id FROM orders WHERE o_id > 0", result["optimized_sql"])
}

func TestApplyCmd_NoProposalFails(t *testing.T) {
	dir := t.TempDir()
	orig := writeFile(t, dir, "orig.sql", "SELECT o_id FROM orders")
	resp := writeFile(t, dir, "resp.txt", "sorry, nothing to improve")

	_, err := runCommand(t, "apply", orig, resp)
	require.Error(t, err)
}

func TestApplyCmd_MissingFile(t *testing.T) {
	dir := t.TempDir()
	orig := writeFile(t, dir, "orig.sql", "SELECT 1")
	_, err := runCommand(t, "apply", orig, filepath.Join(dir, "absent.txt"))
	require.Error(t, err)
}

func TestVerifyCmd_StructuralRigor(t *testing.T) {
	dir := t.TempDir()
	orig := writeFile(t, dir, "orig.sql", "SELECT o_id, o_total FROM orders")
	resp := writeFile(t, dir, "resp.txt", "```sql\nSELECT o_total, o_id FROM orders\n```")

	out, err := runCommand(t, "verify", orig, resp, "--rigor", "structural")
	require.NoError(t, err)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, true, report["equivalent"])
}

func TestVerifyCmd_StructuralViolation(t *testing.T) {
	dir := t.TempDir()
	orig := writeFile(t, dir, "orig.sql", "SELECT o_id, o_total FROM orders")
	resp := writeFile(t, dir, "resp.txt", "```sql\nSELECT o_id FROM orders\n```")

	out, err := runCommand(t, "verify", orig, resp, "--rigor", "structural")
	require.NoError(t, err)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, false, report["equivalent"])
}

func TestVerifyCmd_SchemaRequiredForDynamicRigor(t *testing.T) {
	dir := t.TempDir()
	orig := writeFile(t, dir, "orig.sql", "SELECT o_id FROM orders")
	resp := writeFile(t, dir, "resp.txt", "```sql\nSELECT o_id FROM orders\n```")

	_, err := runCommand(t, "verify", orig, resp, "--rigor", "full")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--schema is required")
}

func TestVerifyCmd_InvalidRigor(t *testing.T) {
	dir := t.TempDir()
	orig := writeFile(t, dir, "orig.sql", "SELECT 1")
	resp := writeFile(t, dir, "resp.txt", "```sql\nSELECT 1\n```")

	_, err := runCommand(t, "verify", orig, resp, "--rigor", "paranoid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rigor")
}

func TestVerifyCmd_FullRigorWithSandbox(t *testing.T) {
	dir := t.TempDir()
	orig := writeFile(t, dir, "orig.sql", "SELECT o_id, o_total FROM orders WHERE o_total BETWEEN 10 AND 500")
	resp := writeFile(t, dir, "resp.txt", "```sql\nSELECT o_id, o_total FROM orders WHERE o_total >= 10 AND o_total <= 500\n```")
	schemaPath := writeFile(t, dir, "schema.yaml", testSchemaYAML)

	out, err := runCommand(t, "verify", orig, resp, "--schema", schemaPath, "--rows", "20")
	require.NoError(t, err)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, true, report["equivalent"], "report: %s", out)
	witnesses := report["witnesses"].([]interface{})
	assert.Len(t, witnesses, 2)
}

func TestVerifyCmd_BatchOutput(t *testing.T) {
	dir := t.TempDir()
	orig := writeFile(t, dir, "orig.sql", "SELECT o_id, o_total FROM orders")
	good := writeFile(t, dir, "a_good.txt", "```sql\nSELECT o_total, o_id FROM orders\n```")
	bad := writeFile(t, dir, "b_bad.txt", "```sql\nSELECT o_id FROM orders\n```")

	out, err := runCommand(t, "verify", orig, good, bad, "--rigor", "structural", "--concurrency", "2")
	require.NoError(t, err)

	var reports []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, good, reports[0]["response"])
	assert.Equal(t, true, reports[0]["report"].(map[string]interface{})["equivalent"])
	assert.Equal(t, false, reports[1]["report"].(map[string]interface{})["equivalent"])
}
