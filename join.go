package scatter

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"

	"github.com/meigma/scatter/internal/ioutil"
)

// FragmentInfo identifies a fragment file found on disk.
type FragmentInfo struct {
	Name string
	Path string
	Size int64
}

// JoinOption configures Join.
type JoinOption func(*joinConfig)

type joinConfig struct {
	log      *zap.Logger
	progress ProgressFunc
	expected digest.Digest
}

// JoinWithLogger sets the logger used by Join.
func JoinWithLogger(log *zap.Logger) JoinOption {
	return func(c *joinConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// JoinWithProgress sets a callback invoked after each fragment is copied.
func JoinWithProgress(fn ProgressFunc) JoinOption {
	return func(c *joinConfig) {
		c.progress = fn
	}
}

// JoinWithExpectedDigest makes Join fail with ErrDigestMismatch unless the
// joined stream matches d. The digest algorithm is taken from d.
func JoinWithExpectedDigest(d digest.Digest) JoinOption {
	return func(c *joinConfig) {
		c.expected = d
	}
}

// ScanDir lists the regular files directly inside dir as fragment
// candidates. Subdirectories and other non-regular entries are ignored.
func ScanDir(dir string) ([]FragmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	frags := make([]FragmentInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		frags = append(frags, FragmentInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return frags, nil
}

// StatFragments builds fragment candidates from explicit file paths.
func StatFragments(paths []string) ([]FragmentInfo, error) {
	frags := make([]FragmentInfo, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("not a regular file: %s", path)
		}
		frags = append(frags, FragmentInfo{Name: filepath.Base(path), Path: path, Size: info.Size()})
	}
	return frags, nil
}

// Order recovers stream order from fragment sizes alone.
//
// Fragments are sorted by size, largest first, and the largest (the
// remainder) is moved to the end. The set is rejected with ErrPlan when two
// fragments share a size or when the sizes differ from the layout NewPlan
// computes for the same total and count, which indicates a missing or
// foreign file.
func Order(frags []FragmentInfo) ([]FragmentInfo, error) {
	if len(frags) == 0 {
		return nil, &PlanError{Reason: "no fragments"}
	}

	sorted := slices.Clone(frags)
	slices.SortStableFunc(sorted, func(a, b FragmentInfo) int {
		return cmp.Compare(b.Size, a.Size)
	})

	var total int64
	for _, f := range sorted {
		total += f.Size
	}
	sizesOf := func() []int64 {
		sizes := make([]int64, len(sorted))
		for i, f := range sorted {
			sizes[i] = f.Size
		}
		return sizes
	}

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Size == sorted[i-1].Size {
			return nil, &PlanError{Total: total, Count: len(sorted), Sizes: sizesOf(),
				Reason: fmt.Sprintf("fragments %q and %q have the same size", sorted[i-1].Name, sorted[i].Name)}
		}
	}

	ordered := make([]FragmentInfo, 0, len(sorted))
	ordered = append(ordered, sorted[1:]...)
	ordered = append(ordered, sorted[0])

	want, err := PlanSizes(total, len(ordered))
	if err != nil {
		return nil, err
	}
	for i, f := range ordered {
		if f.Size != want[i] {
			return nil, &PlanError{Total: total, Count: len(ordered), Sizes: sizesOf(),
				Reason: fmt.Sprintf("fragment %q has size %d, layout expects %d at position %d", f.Name, f.Size, want[i], i)}
		}
	}
	return ordered, nil
}

// Join orders frags by size and concatenates them into dst. It returns the
// digest of the joined stream.
func Join(ctx context.Context, frags []FragmentInfo, dst io.Writer, opts ...JoinOption) (digest.Digest, error) {
	cfg := joinConfig{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	alg := digest.Canonical
	if cfg.expected != "" {
		if err := cfg.expected.Validate(); err != nil {
			return "", fmt.Errorf("expected digest: %w", err)
		}
		alg = cfg.expected.Algorithm()
	}

	ordered, err := Order(frags)
	if err != nil {
		return "", err
	}

	var total int64
	for _, f := range ordered {
		total += f.Size
	}

	d := alg.Digester()
	w := io.MultiWriter(dst, d.Hash())
	buf := make([]byte, ioutil.DefaultBufferSize)
	var done int64
	for i, f := range ordered {
		n, err := copyFragment(ctx, w, f, buf)
		if err != nil {
			return "", err
		}
		done += n
		cfg.log.Debug("joined fragment",
			zap.String("fragment", f.Name),
			zap.Int("index", i),
			zap.Int64("size", n))
		if cfg.progress != nil {
			cfg.progress(ProgressEvent{
				Stage:          StageJoining,
				Name:           f.Name,
				BytesDone:      done,
				BytesTotal:     total,
				FragmentsDone:  i + 1,
				FragmentsTotal: len(ordered),
			})
		}
	}

	got := d.Digest()
	if cfg.expected != "" && got != cfg.expected {
		return got, fmt.Errorf("%w: expected %s, got %s", ErrDigestMismatch, cfg.expected, got)
	}
	return got, nil
}

func copyFragment(ctx context.Context, w io.Writer, f FragmentInfo, buf []byte) (int64, error) {
	r, err := os.Open(f.Path)
	if err != nil {
		return 0, &FragmentError{Name: f.Name, Op: "open", Err: err}
	}
	defer r.Close()

	n, err := ioutil.CopyWithContext(ctx, w, r, buf)
	if err != nil {
		return n, fmt.Errorf("join fragment %q: %w", f.Name, err)
	}
	if n != f.Size {
		return n, &FragmentError{Name: f.Name, Op: "read", Err: fmt.Errorf("size changed from %d to %d", f.Size, n)}
	}
	return n, nil
}
