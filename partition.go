package scatter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"

	"github.com/meigma/scatter/internal/ioutil"
)

// Written describes a fragment produced by Partition.
type Written struct {
	Name   string
	Size   int64
	Digest digest.Digest
}

// Result summarizes a completed partition.
type Result struct {
	// Fragments lists the written fragments in stream order.
	Fragments []Written

	// Digest is the canonical digest of the whole source stream.
	Digest digest.Digest

	// Total is the number of bytes consumed from the source.
	Total int64
}

// Partitioner streams a source into one sink per plan fragment.
//
// Fragments are written strictly in plan order from a single forward read of
// the source. There is no rollback: when Partition fails, fragments written
// so far are left in place.
type Partitioner struct {
	sinks    SinkFactory
	log      *zap.Logger
	progress ProgressFunc
	bufSize  int
}

// NewPartitioner creates a Partitioner that writes fragments to sinks.
func NewPartitioner(sinks SinkFactory, opts ...PartitionOption) *Partitioner {
	p := &Partitioner{
		sinks: sinks,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Partition reads src from the start and writes each plan fragment to its
// sink. Every fragment but the last receives exactly its planned size; the
// last fragment receives everything that remains in src.
//
// A source that ends early yields a *TruncationError. Sink failures yield a
// *FragmentError naming the fragment and stop the run.
func (p *Partitioner) Partition(ctx context.Context, src io.Reader, plan Plan) (*Result, error) {
	if plan.Len() == 0 {
		return nil, &PlanError{Total: plan.Total(), Reason: "plan has no fragments"}
	}

	stream := digest.Canonical.Digester()
	src = io.TeeReader(src, stream.Hash())

	bufSize := p.bufSize
	if bufSize <= 0 {
		bufSize = ioutil.DefaultBufferSize
	}
	buf := make([]byte, bufSize)

	res := &Result{Fragments: make([]Written, 0, plan.Len())}
	for i, frag := range plan.fragments {
		w, err := p.writeFragment(ctx, src, plan, i, buf, res.Total)
		if err != nil {
			return nil, err
		}
		res.Fragments = append(res.Fragments, w)
		res.Total += w.Size
		p.report(ProgressEvent{
			Stage:          StageWriting,
			Name:           frag.Name,
			BytesDone:      res.Total,
			BytesTotal:     plan.Total(),
			FragmentsDone:  i + 1,
			FragmentsTotal: plan.Len(),
		})
	}
	res.Digest = stream.Digest()

	p.log.Debug("partition complete",
		zap.Int("fragments", len(res.Fragments)),
		zap.Int64("bytes", res.Total),
		zap.Stringer("digest", res.Digest))
	return res, nil
}

func (p *Partitioner) writeFragment(ctx context.Context, src io.Reader, plan Plan, idx int, buf []byte, offset int64) (written Written, err error) {
	frag := plan.fragments[idx]
	last := idx == plan.Len()-1

	sink, err := p.sinks.Create(frag.Name)
	if err != nil {
		return Written{}, &FragmentError{Name: frag.Name, Op: "create", Err: err}
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = &FragmentError{Name: frag.Name, Op: "close", Err: cerr}
		}
	}()

	d := digest.Canonical.Digester()
	dst := io.MultiWriter(&fragmentWriter{w: sink, name: frag.Name}, d.Hash())
	if p.progress != nil {
		dst = &progressWriter{
			w:      dst,
			fn:     p.progress,
			offset: offset,
			event: ProgressEvent{
				Stage:          StageWriting,
				Name:           frag.Name,
				BytesTotal:     plan.Total(),
				FragmentsDone:  idx,
				FragmentsTotal: plan.Len(),
			},
		}
	}

	var n int64
	if last {
		n, err = ioutil.CopyWithContext(ctx, dst, src, buf)
	} else {
		n, err = ioutil.CopyNWithContext(ctx, dst, src, frag.Size, buf)
	}
	if err != nil {
		return Written{}, p.copyError(frag, n, err)
	}

	if last && n != frag.Size {
		p.log.Warn("final fragment size differs from plan",
			zap.String("fragment", frag.Name),
			zap.Int64("planned", frag.Size),
			zap.Int64("written", n))
	}
	p.log.Debug("wrote fragment",
		zap.String("fragment", frag.Name),
		zap.Int64("offset", offset),
		zap.Int64("size", n))

	return Written{Name: frag.Name, Size: n, Digest: d.Digest()}, nil
}

func (p *Partitioner) copyError(frag Fragment, n int64, err error) error {
	var fe *FragmentError
	switch {
	case errors.As(err, &fe):
		return err
	case errors.Is(err, io.ErrUnexpectedEOF):
		return &TruncationError{Name: frag.Name, Want: frag.Size, Got: n}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("read source for fragment %q: %w", frag.Name, err)
	}
}

func (p *Partitioner) report(ev ProgressEvent) {
	if p.progress != nil {
		p.progress(ev)
	}
}

// fragmentWriter tags sink write failures with the fragment name.
type fragmentWriter struct {
	w    io.Writer
	name string
}

func (f *fragmentWriter) Write(b []byte) (int, error) {
	n, err := f.w.Write(b)
	if err != nil {
		return n, &FragmentError{Name: f.name, Op: "write", Err: err}
	}
	return n, nil
}

type progressWriter struct {
	w      io.Writer
	fn     ProgressFunc
	event  ProgressEvent
	offset int64
	n      int64
}

func (pw *progressWriter) Write(b []byte) (int, error) {
	n, err := pw.w.Write(b)
	pw.n += int64(n)
	ev := pw.event
	ev.BytesDone = pw.offset + pw.n
	pw.fn(ev)
	return n, err
}
