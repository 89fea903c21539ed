// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestReadDOILines(t *testing.T) {
	lines, err := readDOILines(strings.NewReader("# batch 1\n10.1002/a\n\n  https://doi.org/10.1016/b  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1002/a", "https://doi.org/10.1016/b"}, lines)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	m := types.Metrics{
		"Wiley":    {Attempted: 4, Succeeded: 3},
		"Crossref": {Attempted: 2, Succeeded: 0},
	}
	printSummary(&buf, m, 3, "/state/failures.log", 90*time.Second)

	out := buf.String()
	assert.Contains(t, out, "  Wiley: 3/4 PDFs succeeded (75.0%)\n")
	assert.Contains(t, out, "  Crossref: 0/2 PDFs succeeded (0.0%)\n")
	assert.Less(t, strings.Index(out, "Crossref"), strings.Index(out, "Wiley"))
	assert.Contains(t, out, "3 DOIs failed; see /state/failures.log")
}

func TestExtractCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "savedrecs.txt")
	require.NoError(t, os.WriteFile(path, []byte("DI 10.1002/anie.1\nDI 10.5555/open.2\nDI 10.1002/anie.1\n"), 0o644))

	out, err := runCLI(t, "extract", "--secrets-dir", t.TempDir(), path)
	require.NoError(t, err)
	assert.Equal(t, "10.1002/anie.1\tWiley\n10.5555/open.2\tCrossref\n", out)
}

func TestExtractCommand_MissingFile(t *testing.T) {
	_, err := runCLI(t, "extract", "--secrets-dir", t.TempDir(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorContains(t, err, "opening export")
}

func TestPlanCommand(t *testing.T) {
	t.Setenv("WILEY_TDM_TOKEN", "tdm-token")
	t.Setenv("ELSEVIER_API_KEY", "")
	state := t.TempDir()

	out, err := runCLI(t, "plan", "--secrets-dir", t.TempDir(), "--state-dir", state,
		"--doi", "10.1002/a", "--doi", "10.1016/b")
	require.NoError(t, err)
	assert.Contains(t, out, "DOIs: 2 total, window 0-2")
	assert.Contains(t, out, "Routable: Wiley=1")
	assert.Contains(t, out, "Disabled Elsevier:")
	assert.Contains(t, out, "ELSEVIER_API_KEY")

	out, err = runCLI(t, "plan", "--secrets-dir", t.TempDir(), "--state-dir", state,
		"--doi", "10.1002/a", "--doi", "10.1016/b", "--yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "total: 2")
	assert.Contains(t, out, "Wiley: 1")
}
