package cli_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/hbomb79/galleria/internal/cli"
	"github.com/hbomb79/galleria/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cli.RootCmd.SetOut(&out)
	cli.RootCmd.SetArgs(args)
	err := cli.Execute()
	return out.String(), err
}

func TestVerifyCommand(t *testing.T) {
	source := fs.NewDir(t, "source",
		fs.WithDir("2023 Night Garden", fs.WithDir("2023 Night Garden_gallery", fs.WithFile("a.jpg", "x"))),
	)
	target := fs.NewDir(t, "target", fs.WithDir("2023 Night Garden"))
	reports := fs.NewDir(t, "reports")

	out, err := execute(t, "verify", "--no-color", "--source", source.Path(), "--target", target.Path(), "--report-dir", reports.Path())
	require.NoError(t, err)
	assert.Contains(t, out, "Ready")

	for _, pattern := range []string{"match-*.log", "file-mapping-*.csv", "report-*.json"} {
		matches, err := filepath.Glob(reports.Join(pattern))
		require.NoError(t, err)
		assert.Len(t, matches, 1, pattern)
	}

	assert.NoDirExists(t, target.Join("2023 Night Garden", "2023 Night Garden_gallery"))
}

func TestConfigCommand(t *testing.T) {
	dir := fs.NewDir(t, "config")

	out, err := execute(t, "config", "--source", dir.Path(), "--target", dir.Path(), "--report-dir=", "--concurrency", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "concurrency: 3")
	assert.Contains(t, out, "report_dir: "+dir.Join("_reports"))
}

func TestInvalidConfiguration(t *testing.T) {
	dir := fs.NewDir(t, "config")

	_, err := execute(t, "config", "--source", dir.Path(), "--target", dir.Path(), "--concurrency=0")
	assert.Error(t, err)
}
