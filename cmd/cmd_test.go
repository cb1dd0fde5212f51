//go:build !windows

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardup/hardup/pkg/dedupe"
	"github.com/hardup/hardup/pkg/fileid"
	"github.com/hardup/hardup/pkg/linker"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func duplicates(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range map[string]string{"a.txt": "hello", "b.txt": "hello", "c.txt": "world"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		require.NoError(t, os.Chtimes(path, fixedTime, fixedTime))
	}

	return dir
}

func inode(t *testing.T, path string) uint64 {
	t.Helper()

	st, err := fileid.Lstat(path)
	require.NoError(t, err)
	return st.Inode
}

func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()

	root := RootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(append([]string{"--config-dir", t.TempDir()}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLink(t *testing.T) {
	dir := duplicates(t)

	_, err := execute(t, nil, "link", dir)
	require.NoError(t, err)

	assert.Equal(t, inode(t, filepath.Join(dir, "a.txt")), inode(t, filepath.Join(dir, "b.txt")))
	assert.NotEqual(t, inode(t, filepath.Join(dir, "a.txt")), inode(t, filepath.Join(dir, "c.txt")))
}

func TestLink_DryRun(t *testing.T) {
	dir := duplicates(t)
	before := inode(t, filepath.Join(dir, "b.txt"))

	_, err := execute(t, nil, "link", "-n", "--hash", "--checksum-algorithm", "blake3", dir)
	require.NoError(t, err)

	assert.Equal(t, before, inode(t, filepath.Join(dir, "b.txt")))
}

func TestLink_Stdin(t *testing.T) {
	for _, tt := range []struct {
		name  string
		flags []string
		sep   string
	}{
		{"implicit", nil, "\n"},
		{"stdin", []string{"--stdin"}, "\n"},
		{"null", []string{"-0"}, "\x00"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			dir := duplicates(t)
			input := strings.NewReader(filepath.Join(dir, "a.txt") + tt.sep + filepath.Join(dir, "b.txt") + tt.sep)

			_, err := execute(t, input, append([]string{"link"}, tt.flags...)...)
			require.NoError(t, err)

			assert.Equal(t, inode(t, filepath.Join(dir, "a.txt")), inode(t, filepath.Join(dir, "b.txt")))
		})
	}
}

func TestLink_ExitCodes(t *testing.T) {
	dir := duplicates(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"arguments with stdin", []string{"link", "--stdin", dir}, ExitUsage},
		{"unknown flag", []string{"link", "--no-such-flag", dir}, ExitUsage},
		{"missing root", []string{"link", filepath.Join(dir, "missing")}, ExitNoInput},
		{"bad walker", []string{"link", "--walker", "sideways", dir}, ExitConfig},
		{"bad exclude", []string{"link", "--exclude", "(", dir}, ExitConfig},
		{"bad filter", []string{"link", "--filter", "Size >", dir}, ExitConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, nil, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.want, ExitCode(err))
		})
	}
}

func TestLink_ConfigFileAndMetrics(t *testing.T) {
	dir := duplicates(t)
	configDir := t.TempDir()
	metricsFile := filepath.Join(configDir, "hardup.prom")

	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(fmt.Sprintf(`
walker: fast
workers: 2
use_checksum: true
exclude:
  - 'c\.txt$'
metrics_file: %s
`, metricsFile)), 0o600))

	root := RootCommand()
	root.SetArgs([]string{"--config-dir", configDir, "link", dir})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Equal(t, inode(t, filepath.Join(dir, "a.txt")), inode(t, filepath.Join(dir, "b.txt")))

	content, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "hardup_files_examined_total")
	assert.Contains(t, string(content), `hardup_skipped_total{reason="excluded"}`)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hardup version: ")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", assert.AnError, ExitFailure},
		{"explicit", withCode(ExitUsage, assert.AnError), ExitUsage},
		{"root", &dedupe.RootError{Root: "/x", Err: os.ErrNotExist}, ExitNoInput},
		{"link", &linker.Error{Kind: linker.ErrLink, Class: linker.Safe, Err: assert.AnError}, ExitUnavailable},
		{"wrapped link", fmt.Errorf("run: %w", &linker.Error{Kind: linker.ErrRace, Class: linker.DataLoss}), ExitUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
