package ioutil

import (
	"context"
	"io"
)

// DefaultBufferSize is the copy buffer size used when callers pass nil.
const DefaultBufferSize = 32 * 1024

// CopyWithContext copies from src to dst until EOF or error, checking for
// context cancellation between reads. It returns the number of bytes written.
//
//nolint:gocognit // Follows stdlib io.Copy pattern; complexity is inherent to correct I/O handling
func CopyWithContext(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	if buf == nil {
		buf = make([]byte, DefaultBufferSize)
	}
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			if nw > 0 {
				if written > maxInt64-int64(nw) {
					return written, ErrOverflow
				}
				written += int64(nw)
			}
			if ew != nil {
				return written, ew
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if er != nil {
			if er == io.EOF {
				return written, nil
			}
			return written, er
		}
	}
}

// CopyNWithContext copies exactly n bytes from src to dst, checking for
// context cancellation between reads. On success written == n. If src is
// exhausted early, the returned error is io.ErrUnexpectedEOF.
func CopyNWithContext(ctx context.Context, dst io.Writer, src io.Reader, n int64, buf []byte) (int64, error) {
	written, err := CopyWithContext(ctx, dst, io.LimitReader(src, n), buf)
	if err != nil {
		return written, err
	}
	if written < n {
		return written, io.ErrUnexpectedEOF
	}
	return written, nil
}
