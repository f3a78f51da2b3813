package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taxosurv/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cohortTSV = "cancer\tOS_time\tOS\tPFI_time\tPFI\ttaxonA\n" +
	"BRCA\t10\t1\t8\t1\t0\n" +
	"BRCA\t20\t1\t15\t1\t0\n" +
	"BRCA\t30\t0\t30\t0\t0\n" +
	"BRCA\t40\t1\t12\t1\t5\n" +
	"BRCA\t50\t0\t50\t1\t5\n" +
	"BRCA\t60\t0\t60\t0\t5\n"

type fixture struct {
	dir     string
	input   string
	cancers string
	taxa    string
	out     string
}

func newFixture(t *testing.T, taxa string) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:     dir,
		input:   filepath.Join(dir, "cohort.tsv"),
		cancers: filepath.Join(dir, "cancers.txt"),
		taxa:    filepath.Join(dir, "taxa.txt"),
		out:     filepath.Join(dir, "out"),
	}
	require.NoError(t, os.WriteFile(f.input, []byte(cohortTSV), 0o644))
	require.NoError(t, os.WriteFile(f.cancers, []byte("BRCA\n"), 0o644))
	require.NoError(t, os.WriteFile(f.taxa, []byte(taxa), 0o644))
	return f
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRunCommand_WritesResults(t *testing.T) {
	f := newFixture(t, "taxonA\n")

	_, logs, err := execute(t, "run",
		"--input_data", f.input,
		"--cancer_list", f.cancers,
		"--taxa_list", f.taxa,
		"--output_dir", f.out,
		"--workers", "2")
	require.NoError(t, err, logs)

	osResult := readFile(t, filepath.Join(f.out, "OS_result.txt"))
	assert.True(t, strings.HasPrefix(osResult, "BRCA,taxonA,OS_p=0.11608"), osResult)
	assert.True(t, strings.HasSuffix(osResult, ",Enriched=Nonzero\n"), osResult)

	pfsResult := readFile(t, filepath.Join(f.out, "PFS_result.txt"))
	assert.True(t, strings.HasPrefix(pfsResult, "BRCA,taxonA,PFS_p="), pfsResult)
	assert.Equal(t, 1, strings.Count(pfsResult, "\n"))

	groups := readFile(t, filepath.Join(f.out, "BRCA_group.tsv"))
	lines := strings.Split(strings.TrimRight(groups, "\n"), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "cancer\tOS_time\tOS\tPFI_time\tPFI\ttaxonA\ttaxonA_group", lines[0])
	assert.Equal(t, "BRCA\t10\t1\t8\t1\t0\tZero", lines[1])
	assert.Equal(t, "BRCA\t60\t0\t60\t0\t5\tNonzero", lines[6])

	report := readFile(t, filepath.Join(f.out, "run_report.yaml"))
	assert.Contains(t, report, "comparisons: 2")
	assert.Contains(t, report, "cancer: BRCA")

	assert.Contains(t, logs, "results written")
}

func TestRunCommand_RerunIsIdentical(t *testing.T) {
	f := newFixture(t, "taxonA\n")
	args := []string{"run",
		"--input-data", f.input,
		"--cancer-list", f.cancers,
		"--taxa-list", f.taxa,
		"--output-dir", f.out,
		"--os-output", "os.txt",
		"--pfs-output", "pfs.txt",
		"--no-report"}

	_, _, err := execute(t, args...)
	require.NoError(t, err)
	first := readFile(t, filepath.Join(f.out, "os.txt"))

	_, _, err = execute(t, args...)
	require.NoError(t, err)
	assert.Equal(t, first, readFile(t, filepath.Join(f.out, "os.txt")))

	_, err = os.Stat(filepath.Join(f.out, "run_report.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunCommand_UnknownTaxonWritesNothing(t *testing.T) {
	f := newFixture(t, "taxonA\ntaxonZ\n")

	_, _, err := execute(t, "run",
		"--input-data", f.input,
		"--cancer-list", f.cancers,
		"--taxa-list", f.taxa,
		"--output-dir", f.out)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	assert.Contains(t, err.Error(), "taxonZ")

	_, statErr := os.Stat(filepath.Join(f.out, "OS_result.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunCommand_MissingFlags(t *testing.T) {
	_, _, err := execute(t, "run", "--input-data", "cohort.tsv")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestRunCommand_ConfigFile(t *testing.T) {
	f := newFixture(t, "taxonA\n")
	cfgPath := filepath.Join(f.dir, "run.yaml")
	cfg := "paths:\n" +
		"  input_data: " + f.input + "\n" +
		"  cancer_list: " + f.cancers + "\n" +
		"  taxa_list: " + f.taxa + "\n" +
		"  output_dir: " + f.out + "\n" +
		"report:\n" +
		"  enabled: false\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	_, _, err := execute(t, "run", "--config", cfgPath, "--os-output", "overall.txt")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(f.out, "overall.txt"))
	assert.FileExists(t, filepath.Join(f.out, "PFS_result.txt"))
	assert.NoFileExists(t, filepath.Join(f.out, "run_report.yaml"))
}

func TestKMCommand(t *testing.T) {
	f := newFixture(t, "taxonA\n")

	stdout, _, err := execute(t, "km", "--input-data", f.input, "--cancer", "BRCA")
	require.NoError(t, err)
	assert.Contains(t, stdout, "BRCA OS: n=6 events=3")
	assert.Contains(t, stdout, "median: 40")
	assert.Contains(t, stdout, "quartiles: 25%=20.0 75%=not reached")
	assert.Contains(t, stdout, "final survival: 0.4444")

	stdout, _, err = execute(t, "km", "--input-data", f.input, "--cancer", "BRCA",
		"--taxon", "taxonA", "--group", "Zero")
	require.NoError(t, err)
	assert.Contains(t, stdout, "n=3 events=2")
	assert.Contains(t, stdout, "median: 20")

	stdout, _, err = execute(t, "km", "--input-data", f.input, "--cancer", "BRCA",
		"--taxon", "taxonA", "--group", "Nonzero")
	require.NoError(t, err)
	assert.Contains(t, stdout, "median: not reached")
}

func TestKMCommand_BadArguments(t *testing.T) {
	f := newFixture(t, "taxonA\n")

	_, _, err := execute(t, "km", "--input-data", f.input, "--cancer", "BRCA", "--taxon", "taxonA")
	assert.Error(t, err)

	_, _, err = execute(t, "km", "--input-data", f.input, "--cancer", "BRCA", "--endpoint", "DSS")
	assert.Error(t, err)

	_, _, err = execute(t, "km", "--input-data", f.input, "--cancer", "KIRC")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
