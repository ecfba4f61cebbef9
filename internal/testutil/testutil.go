// Package testutil holds shared helpers for tests.
package testutil

import (
	"errors"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ErrInjected is returned by FailingReader once its budget is spent.
var ErrInjected = errors.New("testutil: injected failure")

// RandomBytes returns n deterministic pseudo-random bytes for seed.
func RandomBytes(n int, seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

// FailingReader returns data normally for the first N bytes of R, then
// ErrInjected.
type FailingReader struct {
	R io.Reader
	N int64
}

// Read implements io.Reader.
func (f *FailingReader) Read(p []byte) (int, error) {
	if f.N <= 0 {
		return 0, ErrInjected
	}
	if int64(len(p)) > f.N {
		p = p[:f.N]
	}
	n, err := f.R.Read(p)
	f.N -= int64(n)
	return n, err
}

// CreateFiles writes files (relative slash paths to contents) under dir.
func CreateFiles(tb testing.TB, dir string, files map[string][]byte) {
	tb.Helper()
	for path, content := range files {
		fullPath := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(tb, os.MkdirAll(filepath.Dir(fullPath), 0o755))
		require.NoError(tb, os.WriteFile(fullPath, content, 0o644))
	}
}

// ReadTree returns every regular file under dir keyed by slash path.
func ReadTree(tb testing.TB, dir string) map[string][]byte {
	tb.Helper()
	files := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path) //nolint:gosec // test helper reads its own temp dir
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	require.NoError(tb, err)
	return files
}

// FileSizes returns the size of each named file in dir.
func FileSizes(tb testing.TB, dir string, names []string) []int64 {
	tb.Helper()
	sizes := make([]int64, len(names))
	for i, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(tb, err)
		sizes[i] = info.Size()
	}
	return sizes
}
