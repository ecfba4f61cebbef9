package archive

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/meigma/scatter/internal/ioutil"
)

// ErrUnsafePath is returned when an archive entry would land outside the
// destination directory.
var ErrUnsafePath = errors.New("archive: unsafe path")

// Extract unpacks the tar stream r into dest, creating dest if needed.
//
// The compression is detected from the stream. Directories and regular
// files are restored with their permission bits; other entry types are
// skipped. Existing files are never overwritten.
func Extract(ctx context.Context, r io.Reader, dest string, opts ...Option) error {
	cfg := newConfig(opts)

	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	c := detectCompression(head)
	dec, err := newDecompressor(br, c)
	if err != nil {
		return err
	}
	defer dec.Close()

	if err := os.MkdirAll(dest, 0o750); err != nil {
		return err
	}
	root, err := os.OpenRoot(dest)
	if err != nil {
		return err
	}
	defer root.Close()

	tr := tar.NewReader(dec)
	buf := make([]byte, ioutil.DefaultBufferSize)
	var files int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		name, err := entryPath(hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(name, hdr.FileInfo().Mode().Perm()|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := extractFile(ctx, root, name, hdr, tr, buf); err != nil {
				return err
			}
			files++
		default:
			cfg.log.Debug("skipping tar entry", zap.String("path", hdr.Name), zap.Uint8("type", hdr.Typeflag))
		}
	}

	cfg.log.Debug("extracted archive",
		zap.String("dest", dest),
		zap.Stringer("compression", c),
		zap.Int("files", files))
	return nil
}

func extractFile(ctx context.Context, root *os.Root, name string, hdr *tar.Header, r io.Reader, buf []byte) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := root.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	f, err := root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, hdr.FileInfo().Mode().Perm())
	if err != nil {
		return err
	}
	n, err := ioutil.CopyWithContext(ctx, f, r, buf)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("extract %s: %w", hdr.Name, err)
	}
	if n != hdr.Size {
		return fmt.Errorf("extract %s: expected %d bytes, got %d", hdr.Name, hdr.Size, n)
	}
	return nil
}

// entryPath converts a tar entry name into a relative OS path, rejecting
// absolute names and names that climb out of the destination.
func entryPath(name string) (string, error) {
	clean := path.Clean(strings.TrimSuffix(name, "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.FromSlash(clean), nil
}
