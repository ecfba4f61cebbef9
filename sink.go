package scatter

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SinkFactory creates the destination for each fragment.
type SinkFactory interface {
	// Create opens a new, empty sink for the named fragment. It must fail
	// rather than overwrite an existing sink of the same name.
	Create(name string) (io.WriteCloser, error)
}

// DirSink writes each fragment as a regular file directly inside Dir.
//
// Files are created exclusively, so a name that already exists is an error
// rather than a silent overwrite. Partially written files are left in place
// when a run fails.
type DirSink struct {
	// Dir is the output directory. Empty means the current directory.
	Dir string

	// Perm is the mode for created files. Zero uses 0o644.
	Perm os.FileMode
}

// Create implements SinkFactory.
func (s DirSink) Create(name string) (io.WriteCloser, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	perm := s.Perm
	if perm == 0 {
		perm = 0o644
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	//nolint:gosec // name is validated to be a single path element
	return os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
}

// validateName accepts names usable as a single file name in a directory.
func validateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return errors.New("not a usable file name")
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return errors.New("name contains a path separator")
	}
	return nil
}
