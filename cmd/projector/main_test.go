package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "validate", "history"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)
	assert.Equal(t, "projector.yaml", cfg.DefValue)

	hist, _, err := cmd.Find([]string{"history"})
	require.NoError(t, err)
	limit := hist.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "20", limit.DefValue)
}

func sample(t *testing.T, rel string) string {
	t.Helper()
	p, err := filepath.Abs(filepath.Join("..", "..", "configs", rel))
	require.NoError(t, err)
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "absent.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestRunAndHistory(t *testing.T) {
	dir := t.TempDir()
	settings := fmt.Sprintf(`valuation_date: "2024-01-31"
products: [TERM, LEVEL]
assumption_bundle: %q
model_points:
  inforce: %q
  newbiz: %q
output_dir: %q
formats: [csv, markdown]
parallelism: 2
run_log: %q
metrics_textfile: %q
`, sample(t, "basis.hjson"), sample(t, "model_points/inforce.csv"), sample(t, "model_points/newbiz.csv"),
		filepath.Join(dir, "out"), filepath.Join(dir, "runs.db"), filepath.Join(dir, "projector.prom"))
	cfg := filepath.Join(dir, "projector.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(settings), 0o644))

	out, err := execute(t, "run", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "inforce/TERM")
	assert.Contains(t, out, "inforce/LEVEL")
	assert.Contains(t, out, "newbiz/TERM")
	assert.Contains(t, out, "skipped newbiz/LEVEL")

	prom, err := os.ReadFile(filepath.Join(dir, "projector.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "projector_runs_total")

	out, err = execute(t, "history", "--run-log", filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "SUCCESS")
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", "--valuation-date", "2024-01-31", sample(t, "model_points/inforce.csv"))
	require.NoError(t, err)
	assert.Contains(t, out, "6 policies, 0 issues")

	bad := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte(`policy_id,date_of_birth,entry_date,sex,product,policy_term,sum_assured,annual_premium,premium_frequency
P1,1980-01-01,2020-01-01,M,TERM,10,1000,100,12
P1,1980-01-01,2020-01-01,X,TERM,10,1000,100,3
`), 0o644))
	out, err = execute(t, "validate", "--valuation-date", "2024-01-31", bad)
	assert.ErrorContains(t, err, "1 model point file(s) failed validation")
	assert.Contains(t, out, "duplicate of row 0")
	assert.Contains(t, out, "Sex")

	blank := filepath.Join(t.TempDir(), "blank.csv")
	require.NoError(t, os.WriteFile(blank, []byte(`policy_id,date_of_birth,entry_date,sex,product,policy_term,sum_assured,annual_premium,premium_frequency
P1,1980-05-01,2020-01-01,M,TERM,20,,,12
`), 0o644))
	out, err = execute(t, "validate", "--valuation-date", "2024-01-31", blank)
	assert.ErrorContains(t, err, "1 model point file(s) failed validation")
	assert.Contains(t, out, "SumAssured: is required")
}
