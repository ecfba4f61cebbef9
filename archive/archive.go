package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/scatter/internal/ioutil"
)

var errSymlink = errors.New("archive: symlink")

// Source is a byte stream of known length.
type Source struct {
	// Size is the exact number of bytes the stream yields.
	Size int64

	// MediaType describes the stream content.
	MediaType string

	// Compression is the compression applied to the tar stream.
	Compression Compression

	f      *os.File
	remove bool
}

// Read implements io.Reader.
func (s *Source) Read(p []byte) (int, error) {
	return s.f.Read(p)
}

// Close releases the stream. Spool files created by Tar are removed.
func (s *Source) Close() error {
	err := s.f.Close()
	if s.remove {
		err = errors.Join(err, os.Remove(s.f.Name()))
	}
	return err
}

// Open returns an existing file as a Source. The compression and media type
// are detected from the first bytes of the file. Close leaves the file in
// place.
func Open(path string) (*Source, error) {
	f, err := os.Open(path) //nolint:gosec // caller chooses the input file
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("not a regular file: %s", path)
	}

	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	c := detectCompression(head[:n])
	return &Source{Size: info.Size(), MediaType: c.MediaType(), Compression: c, f: f}, nil
}

// Tar archives dir into a spooled tar stream.
//
// Tar walks dir recursively, including directories and regular files.
// Symbolic links and other special files are skipped, never followed. Paths
// in the archive are relative to dir.
//
// The tar writer and the compressor run concurrently, joined by a pipe. The
// returned Source reads the finished spool from the start; closing it
// deletes the spool.
func Tar(ctx context.Context, dir string, opts ...Option) (*Source, error) {
	cfg := newConfig(opts)

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	spool, err := os.CreateTemp(cfg.tempDir, "scatter-*.tar")
	if err != nil {
		return nil, fmt.Errorf("create spool: %w", err)
	}
	discard := func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}

	pr, pw := io.Pipe()
	raw := &ioutil.CountingReader{R: pr}
	packed := &ioutil.CountingWriter{W: spool}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := writeTar(gctx, root, pw, cfg.log)
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := compressTo(gctx, packed, raw, cfg.compression)
		pr.CloseWithError(err)
		return err
	})
	if err := g.Wait(); err != nil {
		discard()
		return nil, err
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		discard()
		return nil, err
	}

	cfg.log.Debug("archived directory",
		zap.String("dir", dir),
		zap.Stringer("compression", cfg.compression),
		zap.Int64("tar_bytes", raw.N),
		zap.Int64("size", packed.N))

	return &Source{
		Size:        packed.N,
		MediaType:   cfg.compression.MediaType(),
		Compression: cfg.compression,
		f:           spool,
		remove:      true,
	}, nil
}

func compressTo(ctx context.Context, dst io.Writer, src io.Reader, c Compression) error {
	enc, err := newCompressor(dst, c)
	if err != nil {
		return err
	}
	if _, err := ioutil.CopyWithContext(ctx, enc, src, nil); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close %s compressor: %w", c, err)
	}
	return nil
}

func writeTar(ctx context.Context, root *os.Root, w io.Writer, log *zap.Logger) error {
	tw := tar.NewWriter(w)
	buf := make([]byte, ioutil.DefaultBufferSize)

	err := fs.WalkDir(root.FS(), ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == "." {
			return nil
		}

		switch {
		case d.IsDir():
			return writeDirHeader(tw, path, d)
		case d.Type().IsRegular():
			err := writeFileEntry(ctx, tw, root, path, buf)
			if errors.Is(err, errSymlink) {
				log.Debug("skipping symlink", zap.String("path", path))
				return nil
			}
			return err
		default:
			log.Debug("skipping non-regular file", zap.String("path", path), zap.Stringer("mode", d.Type()))
			return nil
		}
	})
	if err != nil {
		return err
	}
	return tw.Close()
}

func writeDirHeader(tw *tar.Writer, path string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = path + "/"
	return tw.WriteHeader(hdr)
}

func writeFileEntry(ctx context.Context, tw *tar.Writer, root *os.Root, path string, buf []byte) error {
	f, err := openFileNoFollow(root, filepath.FromSlash(path))
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = path
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	n, err := ioutil.CopyWithContext(ctx, tw, io.LimitReader(f, info.Size()), buf)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if n != info.Size() {
		return fmt.Errorf("file size changed during archive creation: %s: expected %d, got %d", path, info.Size(), n)
	}
	return nil
}
