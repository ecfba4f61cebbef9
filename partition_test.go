package scatter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/meigma/scatter/internal/testutil"
)

func TestPartition(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data := testutil.RandomBytes(1029, 1)

	plan, err := NewPlan(int64(len(data)), SequentialNames(3))
	require.NoError(t, err)

	p := NewPartitioner(DirSink{Dir: dir}, PartitionWithLogger(zaptest.NewLogger(t)))
	res, err := p.Partition(context.Background(), bytes.NewReader(data), plan)
	require.NoError(t, err)

	assert.Equal(t, []int64{343, 342, 344}, testutil.FileSizes(t, dir, plan.Names()))
	assert.Equal(t, int64(1029), res.Total)
	assert.Equal(t, digest.FromBytes(data), res.Digest)

	require.Len(t, res.Fragments, 3)
	var joined []byte
	for i, w := range res.Fragments {
		content, err := os.ReadFile(filepath.Join(dir, w.Name))
		require.NoError(t, err)
		assert.Equal(t, plan.Sizes()[i], w.Size)
		assert.Equal(t, digest.FromBytes(content), w.Digest)
		joined = append(joined, content...)
	}
	assert.Equal(t, data, joined)
}

func TestPartitionRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		total int
		count int
	}{
		{total: 1, count: 1},
		{total: 5, count: 2},
		{total: 100, count: 7},
		{total: 4096, count: 10},
		{total: 100_003, count: 13},
	}

	for _, tt := range tests {
		data := testutil.RandomBytes(tt.total, uint64(tt.total))
		plan, err := NewPlan(int64(tt.total), SequentialNames(tt.count))
		require.NoError(t, err, "total=%d count=%d", tt.total, tt.count)

		sinks := newMemSinks()
		_, err = NewPartitioner(sinks, PartitionWithBufferSize(13)).Partition(context.Background(), bytes.NewReader(data), plan)
		require.NoError(t, err)

		var joined []byte
		for _, name := range plan.Names() {
			joined = append(joined, sinks.files[name].Bytes()...)
		}
		assert.Equal(t, data, joined, "total=%d count=%d", tt.total, tt.count)
	}
}

func TestPartitionTruncatedSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	plan, err := NewPlan(1029, SequentialNames(3))
	require.NoError(t, err)

	data := testutil.RandomBytes(500, 2)
	_, err = NewPartitioner(DirSink{Dir: dir}).Partition(context.Background(), bytes.NewReader(data), plan)
	require.ErrorIs(t, err, ErrTruncated)

	var te *TruncationError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "1", te.Name)
	assert.Equal(t, int64(342), te.Want)
	assert.Equal(t, int64(157), te.Got)

	// Partial output stays in place; nothing past the failure is created.
	assert.Equal(t, []int64{343, 157}, testutil.FileSizes(t, dir, []string{"0", "1"}))
	assert.NoFileExists(t, filepath.Join(dir, "2"))
}

func TestPartitionExistingName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), []byte("keep"), 0o644))

	plan, err := NewPlan(1029, []string{"a", "b", "c"})
	require.NoError(t, err)

	_, err = NewPartitioner(DirSink{Dir: dir}).Partition(context.Background(), bytes.NewReader(testutil.RandomBytes(1029, 3)), plan)
	require.ErrorIs(t, err, ErrIO)

	var fe *FragmentError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "b", fe.Name)
	assert.Equal(t, "create", fe.Op)
	assert.True(t, errors.Is(err, os.ErrExist))

	existing, err := os.ReadFile(filepath.Join(dir, "b"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(existing))
	assert.FileExists(t, filepath.Join(dir, "a"))
	assert.NoFileExists(t, filepath.Join(dir, "c"))
}

func TestPartitionInvalidName(t *testing.T) {
	t.Parallel()

	// NewPlan rejects such names; the sink still refuses them when a plan
	// is built by hand.
	plan := Plan{total: 11, fragments: []Fragment{{Name: "ok", Size: 5}, {Name: "../escape", Size: 6}}}

	_, err := NewPartitioner(DirSink{Dir: t.TempDir()}).Partition(context.Background(), bytes.NewReader(make([]byte, 11)), plan)
	require.ErrorIs(t, err, ErrIO)
	assert.Contains(t, err.Error(), "../escape")
}

func TestPartitionLastDrainsSource(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	plan, err := NewPlan(1029, SequentialNames(3))
	require.NoError(t, err)

	data := testutil.RandomBytes(1100, 4)
	sinks := newMemSinks()
	res, err := NewPartitioner(sinks, PartitionWithLogger(zap.New(core))).Partition(context.Background(), bytes.NewReader(data), plan)
	require.NoError(t, err)

	assert.Equal(t, int64(1100), res.Total)
	assert.Equal(t, 344+71, sinks.files["2"].Len())
	assert.Equal(t, 1, logs.FilterMessage("final fragment size differs from plan").Len())
}

func TestPartitionWriteFailure(t *testing.T) {
	t.Parallel()

	plan, err := NewPlan(1029, SequentialNames(3))
	require.NoError(t, err)

	sinks := newMemSinks()
	sinks.failOn = "1"
	_, err = NewPartitioner(sinks).Partition(context.Background(), bytes.NewReader(testutil.RandomBytes(1029, 5)), plan)
	require.ErrorIs(t, err, ErrIO)

	var fe *FragmentError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "1", fe.Name)
	assert.Equal(t, "write", fe.Op)
	assert.True(t, sinks.closed["1"], "sink must be closed on error")
}

func TestPartitionSourceError(t *testing.T) {
	t.Parallel()

	plan, err := NewPlan(1029, SequentialNames(3))
	require.NoError(t, err)

	src := &testutil.FailingReader{R: bytes.NewReader(testutil.RandomBytes(1029, 6)), N: 400}
	_, err = NewPartitioner(newMemSinks()).Partition(context.Background(), src, plan)
	require.ErrorIs(t, err, testutil.ErrInjected)
	assert.NotErrorIs(t, err, ErrTruncated)
	assert.Contains(t, err.Error(), `fragment "1"`)
}

func TestPartitionCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan, err := NewPlan(1029, SequentialNames(3))
	require.NoError(t, err)

	_, err = NewPartitioner(newMemSinks()).Partition(ctx, bytes.NewReader(make([]byte, 1029)), plan)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPartitionEmptyPlan(t *testing.T) {
	t.Parallel()

	_, err := NewPartitioner(newMemSinks()).Partition(context.Background(), bytes.NewReader(nil), Plan{})
	require.ErrorIs(t, err, ErrPlan)
}

func TestPartitionProgress(t *testing.T) {
	t.Parallel()

	plan, err := NewPlan(4096, SequentialNames(4))
	require.NoError(t, err)

	var events []ProgressEvent
	p := NewPartitioner(newMemSinks(),
		PartitionWithBufferSize(100),
		PartitionWithProgress(func(ev ProgressEvent) { events = append(events, ev) }),
	)
	_, err = p.Partition(context.Background(), bytes.NewReader(make([]byte, 4096)), plan)
	require.NoError(t, err)

	require.NotEmpty(t, events)
	var prev int64
	for _, ev := range events {
		assert.Equal(t, StageWriting, ev.Stage)
		assert.Equal(t, int64(4096), ev.BytesTotal)
		assert.Equal(t, 4, ev.FragmentsTotal)
		assert.GreaterOrEqual(t, ev.BytesDone, prev)
		prev = ev.BytesDone
	}
	lastEvent := events[len(events)-1]
	assert.Equal(t, int64(4096), lastEvent.BytesDone)
	assert.Equal(t, 4, lastEvent.FragmentsDone)
}

// memSinks keeps fragments in memory.
type memSinks struct {
	files  map[string]*bytes.Buffer
	closed map[string]bool
	failOn string
}

func newMemSinks() *memSinks {
	return &memSinks{files: make(map[string]*bytes.Buffer), closed: make(map[string]bool)}
}

func (m *memSinks) Create(name string) (io.WriteCloser, error) {
	if _, ok := m.files[name]; ok {
		return nil, os.ErrExist
	}
	buf := &bytes.Buffer{}
	m.files[name] = buf
	return &memSink{sinks: m, name: name, buf: buf}, nil
}

type memSink struct {
	sinks *memSinks
	name  string
	buf   *bytes.Buffer
}

func (s *memSink) Write(p []byte) (int, error) {
	if s.name == s.sinks.failOn {
		return 0, errors.New("disk full")
	}
	return s.buf.Write(p)
}

func (s *memSink) Close() error {
	s.sinks.closed[s.name] = true
	return nil
}
