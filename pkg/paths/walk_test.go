//go:build !windows

package paths

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardup/hardup/pkg/expression"
	"github.com/hardup/hardup/pkg/fileid"
	"github.com/hardup/hardup/pkg/regex"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	return root
}

func rootDevice(t *testing.T, root string) uint64 {
	t.Helper()

	st, err := fileid.Lstat(root)
	require.NoError(t, err)
	return st.Device
}

func collect(t *testing.T, src Source, root string) []string {
	t.Helper()

	var (
		mu    sync.Mutex
		found []string
	)
	err := src.Walk(context.Background(), root, rootDevice(t, root), func(e Entry) error {
		rel, err := filepath.Rel(root, e.Path)
		if err != nil {
			return err
		}
		assert.True(t, e.Stat.IsRegular())

		mu.Lock()
		found = append(found, rel)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	return found
}

func TestWalker_Order(t *testing.T) {
	root := writeTree(t, map[string]string{
		"b":          "b",
		"a":          "a",
		"sub/c":      "c",
		"sub/deep/d": "d",
		"z":          "z",
		"aa/e":       "e",
	})

	assert.Equal(t, []string{"a", "b", "z", "aa/e", "sub/c", "sub/deep/d"}, collect(t, NewWalker(nil), root))
}

func TestWalker_SkipsSpecialFiles(t *testing.T) {
	root := writeTree(t, map[string]string{"file": "content"})
	require.NoError(t, os.Symlink(filepath.Join(root, "file"), filepath.Join(root, "link")))
	require.NoError(t, os.Symlink(root, filepath.Join(root, "loop")))

	assert.Equal(t, []string{"file"}, collect(t, NewWalker(nil), root))
}

func TestWalker_Filter(t *testing.T) {
	root := writeTree(t, map[string]string{
		"keep.bin":       "12345678",
		"small.bin":      "1",
		"notes.tmp":      "12345678",
		".git/objects/x": "12345678",
		"src/main.bin":   "12345678",
	})

	exclude, err := regex.CompileAll([]string{`/\.git$`, `\.tmp$`})
	require.NoError(t, err)
	expr, err := expression.Compile(`Size >= 4`)
	require.NoError(t, err)

	filter := NewFilter(exclude, expr)

	assert.Equal(t, []string{"keep.bin", "src/main.bin"}, collect(t, NewWalker(filter), root))

	found := collect(t, NewFastWalker(filter, 2), root)
	sort.Strings(found)
	assert.Equal(t, []string{"keep.bin", "src/main.bin"}, found)
}

func TestFastWalker_FindsEverything(t *testing.T) {
	files := map[string]string{}
	var want []string
	for _, dir := range []string{"a", "b", "c/d", "c/e"} {
		for _, name := range []string{"1", "2", "3"} {
			rel := filepath.Join(dir, name)
			files[rel] = strings.Repeat(name, 4)
			want = append(want, rel)
		}
	}
	root := writeTree(t, files)

	found := collect(t, NewFastWalker(nil, 4), root)
	sort.Strings(found)
	sort.Strings(want)
	assert.Equal(t, want, found)
}

func TestWalker_StopsOnCallbackError(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "a", "b": "b"})

	calls := 0
	err := NewWalker(nil).Walk(context.Background(), root, rootDevice(t, root), func(Entry) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}

func TestWalker_Cancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewWalker(nil).Walk(ctx, root, rootDevice(t, root), func(Entry) error {
		t.Fatal("callback must not run after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalker_OtherDevice(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "a"})

	err := NewWalker(nil).Walk(context.Background(), root, rootDevice(t, root)+1, func(Entry) error {
		t.Fatal("files on another device must not be reported")
		return nil
	})
	assert.NoError(t, err)
}

func TestWalkers_OverlappingRoots(t *testing.T) {
	sources := map[string]func() Source{
		"sequential": func() Source { return NewWalker(nil) },
		"fastwalk":   func() Source { return NewFastWalker(nil, 2) },
	}

	for name, newSource := range sources {
		t.Run(name, func(t *testing.T) {
			root := writeTree(t, map[string]string{"a": "a", "sub/c": "c", "sub/deep/d": "d"})
			sub := filepath.Join(root, "sub")

			src := newSource()
			outer := collect(t, src, root)
			sort.Strings(outer)
			assert.Equal(t, []string{"a", "sub/c", "sub/deep/d"}, outer)
			assert.Empty(t, collect(t, src, sub))
			assert.Empty(t, collect(t, src, root))

			src = newSource()
			inner := collect(t, src, sub)
			sort.Strings(inner)
			assert.Equal(t, []string{"c", "deep/d"}, inner)
			assert.Equal(t, []string{"a"}, collect(t, src, root))
		})
	}
}

func TestWalker_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")

	err := NewWalker(nil).Walk(context.Background(), root, 0, func(Entry) error {
		t.Fatal("a missing root has no files")
		return nil
	})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
