package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/meigma/scatter"
	"github.com/meigma/scatter/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func sourceTree() map[string][]byte {
	return map[string][]byte{
		"readme.txt":       []byte("scatter test tree\n"),
		"data/random.bin":  testutil.RandomBytes(20_000, 7),
		"data/nested/z.md": []byte("# z\n"),
	}
}

func TestSplitJoinExtract(t *testing.T) {
	for _, c := range []string{"none", "gzip", "zstd", "lz4"} {
		t.Run(c, func(t *testing.T) {
			src, frags, restored := t.TempDir(), t.TempDir(), filepath.Join(t.TempDir(), "restored")
			testutil.CreateFiles(t, src, sourceTree())

			out, err := execute(t, "split", src, "-o", frags, "-c", c, "--no-progress")
			require.NoError(t, err)
			assert.Contains(t, out, "Wrote 10 fragments")
			assert.ElementsMatch(t, scatter.SequentialNames(10), listDir(t, frags))

			_, err = execute(t, "join", frags, "--extract", restored, "--no-progress")
			require.NoError(t, err)
			assert.Equal(t, sourceTree(), testutil.ReadTree(t, restored))
		})
	}
}

func TestSplitJoinRawInput(t *testing.T) {
	dir, frags := t.TempDir(), t.TempDir()
	input := filepath.Join(dir, "stream.bin")
	data := testutil.RandomBytes(5000, 1)
	require.NoError(t, os.WriteFile(input, data, 0o644))

	out, err := execute(t, "split", "-i", input, "-o", frags, "-n", "7", "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 7 fragments (5000 bytes)")

	sizes := testutil.FileSizes(t, frags, scatter.SequentialNames(7))
	want, err := scatter.PlanSizes(5000, 7)
	require.NoError(t, err)
	assert.Equal(t, want, sizes)

	joined, err := execute(t, "join", frags)
	require.NoError(t, err)
	assert.Equal(t, data, []byte(joined))
}

func TestSplitRandomNames(t *testing.T) {
	src, frags := t.TempDir(), t.TempDir()
	testutil.CreateFiles(t, src, sourceTree())

	_, err := execute(t, "split", src, "-o", frags, "-r", "-n", "4", "--no-progress")
	require.NoError(t, err)

	names := listDir(t, frags)
	require.Len(t, names, 4)
	for _, name := range names {
		assert.Len(t, name, scatter.TokenLength)
		assert.Equal(t, strings.ToUpper(name), name)
	}
}

func TestSplitNamesFile(t *testing.T) {
	src, frags, dir := t.TempDir(), t.TempDir(), t.TempDir()
	testutil.CreateFiles(t, src, sourceTree())
	list := filepath.Join(dir, "names.txt")
	require.NoError(t, os.WriteFile(list, []byte("alpha\nbravo\ncharlie\n"), 0o644))

	_, err := execute(t, "split", src, "-o", frags, "-f", list, "--no-progress")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "bravo", "charlie"}, listDir(t, frags))
}

func TestSplitConfigErrors(t *testing.T) {
	src := t.TempDir()
	testutil.CreateFiles(t, src, sourceTree())
	list := filepath.Join(t.TempDir(), "names.txt")
	require.NoError(t, os.WriteFile(list, []byte("a\nb\n"), 0o644))

	tests := []struct {
		name string
		args []string
	}{
		{"missing root", []string{"split", filepath.Join(src, "nope")}},
		{"no root", []string{"split"}},
		{"file with count", []string{"split", src, "-f", list, "-n", "2"}},
		{"file with random", []string{"split", src, "-f", list, "-r"}},
		{"zero count", []string{"split", src, "-n", "0"}},
		{"missing names file", []string{"split", src, "-f", filepath.Join(src, "missing")}},
		{"bad compression", []string{"split", src, "-c", "brotli"}},
		{"bad log level", []string{"split", src, "--log-level", "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := t.TempDir()
			_, err := execute(t, append(tt.args, "-o", out, "--no-progress")...)
			require.ErrorIs(t, err, scatter.ErrConfig)
			assert.Equal(t, 2, exitCode(err))
			assert.Empty(t, listDir(t, out))
		})
	}
}

func TestSplitPlanErrorWritesNothing(t *testing.T) {
	dir, frags := t.TempDir(), t.TempDir()
	input := filepath.Join(dir, "short.bin")
	require.NoError(t, os.WriteFile(input, []byte("0123456789"), 0o644))

	_, err := execute(t, "split", "-i", input, "-o", frags, "-n", "11", "--no-progress")
	var pe *scatter.PlanError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, exitCode(err))
	assert.Empty(t, listDir(t, frags))
}

func TestSplitRejectsPathNameBeforeWriting(t *testing.T) {
	src, frags, dir := t.TempDir(), t.TempDir(), t.TempDir()
	testutil.CreateFiles(t, src, sourceTree())
	list := filepath.Join(dir, "names.txt")
	require.NoError(t, os.WriteFile(list, []byte("alpha\nbravo\nsub/charlie\n"), 0o644))

	_, err := execute(t, "split", src, "-o", frags, "-f", list, "--no-progress")
	require.ErrorIs(t, err, scatter.ErrConfig)
	assert.Equal(t, 2, exitCode(err))
	assert.Empty(t, listDir(t, frags))
}

func TestPlanHugeCount(t *testing.T) {
	_, err := execute(t, "plan", "100000000000000", "-n", "2000000000")
	var pe *scatter.PlanError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "fragment size is not positive", pe.Reason)
	assert.Equal(t, 2, exitCode(err))
}

func TestPlanTable(t *testing.T) {
	out, err := execute(t, "plan", "100", "-n", "3")
	require.NoError(t, err)
	for _, want := range []string{"NAME", "OFFSET", "TOTAL", "33", "32", "35", "100"} {
		assert.Contains(t, out, want)
	}
}

func TestPlanYAML(t *testing.T) {
	out, err := execute(t, "plan", "100", "-n", "3", "--format", "yaml")
	require.NoError(t, err)

	var got planOutput
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, planOutput{
		Total: 100,
		Fragments: []fragmentOutput{
			{Name: "0", Offset: 0, Size: 33},
			{Name: "1", Offset: 33, Size: 32},
			{Name: "2", Offset: 65, Size: 35},
		},
	}, got)
}

func TestPlanFromFile(t *testing.T) {
	input := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(input, make([]byte, 1000), 0o644))

	out, err := execute(t, "plan", input, "--format", "yaml")
	require.NoError(t, err)
	var got planOutput
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.EqualValues(t, 1000, got.Total)
	assert.Len(t, got.Fragments, scatter.DefaultCount)
}

func TestPlanErrors(t *testing.T) {
	_, err := execute(t, "plan", "10", "-n", "11")
	require.ErrorIs(t, err, scatter.ErrPlan)

	_, err = execute(t, "plan", "100", "--format", "xml")
	require.ErrorIs(t, err, scatter.ErrConfig)

	_, err = execute(t, "plan", filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, scatter.ErrConfig)
}

func TestJoinDigest(t *testing.T) {
	dir, frags := t.TempDir(), t.TempDir()
	input := filepath.Join(dir, "stream.bin")
	require.NoError(t, os.WriteFile(input, testutil.RandomBytes(3000, 3), 0o644))

	out, err := execute(t, "split", "-i", input, "-o", frags, "--no-progress")
	require.NoError(t, err)
	_, digestLine, ok := strings.Cut(out, "digest: ")
	require.True(t, ok)
	sum := strings.TrimSpace(digestLine)

	joined := filepath.Join(dir, "joined.bin")
	_, err = execute(t, "join", frags, "-o", joined, "--digest", sum, "--no-progress")
	require.NoError(t, err)

	_, err = execute(t, "join", frags, "-o", filepath.Join(dir, "bad.bin"),
		"--digest", "sha256:"+strings.Repeat("0", 64), "--no-progress")
	require.ErrorIs(t, err, scatter.ErrDigestMismatch)
	assert.Equal(t, 3, exitCode(err))
}

func TestJoinReadsEnvironment(t *testing.T) {
	dir, frags := t.TempDir(), t.TempDir()
	input := filepath.Join(dir, "stream.bin")
	data := testutil.RandomBytes(3000, 9)
	require.NoError(t, os.WriteFile(input, data, 0o644))

	_, err := execute(t, "split", "-i", input, "-o", frags, "--no-progress")
	require.NoError(t, err)

	joined := filepath.Join(dir, "joined.bin")
	t.Setenv("SCATTER_OUTPUT", joined)
	t.Setenv("SCATTER_NO_PROGRESS", "true")

	out, err := execute(t, "join", frags)
	require.NoError(t, err)
	assert.Contains(t, out, "Joined 10 fragments (3000 bytes)")
	assert.NotContains(t, out, "%", "progress bar must stay off")

	got, err := os.ReadFile(joined)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestJoinOutputAndExtractConflict(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "join", dir, "-o", filepath.Join(dir, "a"), "-x", filepath.Join(dir, "b"))
	require.ErrorIs(t, err, scatter.ErrConfig)
	assert.Equal(t, 2, exitCode(err))
}

func TestJoinRejectsForeignFile(t *testing.T) {
	dir, frags := t.TempDir(), t.TempDir()
	input := filepath.Join(dir, "stream.bin")
	require.NoError(t, os.WriteFile(input, testutil.RandomBytes(3000, 4), 0o644))

	_, err := execute(t, "split", "-i", input, "-o", frags, "--no-progress")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(frags, "stray"), []byte("x"), 0o644))

	_, err = execute(t, "join", frags)
	require.ErrorIs(t, err, scatter.ErrPlan)
}

func TestHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "split")
	assert.Contains(t, out, "join")
	assert.Contains(t, out, "plan")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(fmt.Errorf("wrap: %w", scatter.ErrConfig)))
	assert.Equal(t, 2, exitCode(&scatter.PlanError{Reason: "x"}))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 5, exitCode(fmt.Errorf("wrap: %w", ExitErr{Code: 5, Cause: errors.New("x")})))
}
