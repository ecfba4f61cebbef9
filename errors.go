package scatter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors.
var (
	// ErrConfig is returned when the naming configuration is conflicting,
	// incomplete, or its name list cannot be read.
	ErrConfig = errors.New("scatter: invalid configuration")

	// ErrPlan is returned when fragment sizes cannot form an unambiguous
	// descending-size layout.
	ErrPlan = errors.New("scatter: invalid plan")

	// ErrTruncated is returned when the source ends before a non-final
	// fragment has been filled.
	ErrTruncated = errors.New("scatter: source truncated")

	// ErrIO is returned when a fragment sink cannot be created or written.
	ErrIO = errors.New("scatter: fragment i/o")

	// ErrDigestMismatch is returned when a joined stream does not match the
	// expected digest.
	ErrDigestMismatch = errors.New("scatter: digest mismatch")
)

// PlanError describes a rejected fragment layout.
type PlanError struct {
	Total  int64
	Count  int
	Sizes  []int64
	Reason string
}

func (e *PlanError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (total=%d, count=%d", ErrPlan, e.Reason, e.Total, e.Count)
	if len(e.Sizes) > 0 {
		b.WriteString(", sizes=[")
		for i, s := range e.Sizes {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strconv.FormatInt(s, 10))
		}
		b.WriteByte(']')
	}
	b.WriteByte(')')
	return b.String()
}

// Is reports whether target is ErrPlan.
func (e *PlanError) Is(target error) bool {
	return target == ErrPlan
}

// FragmentError records a sink failure for a named fragment.
type FragmentError struct {
	Name string
	Op   string
	Err  error
}

func (e *FragmentError) Error() string {
	return fmt.Sprintf("%s: %s %q: %v", ErrIO, e.Op, e.Name, e.Err)
}

func (e *FragmentError) Unwrap() error { return e.Err }

// Is reports whether target is ErrIO.
func (e *FragmentError) Is(target error) bool {
	return target == ErrIO
}

// TruncationError reports a source that ran out before fragment Name
// received its planned Want bytes.
type TruncationError struct {
	Name string
	Want int64
	Got  int64
}

func (e *TruncationError) Error() string {
	return fmt.Sprintf("%s: fragment %q wants %d bytes, source had %d", ErrTruncated, e.Name, e.Want, e.Got)
}

// Is reports whether target is ErrTruncated.
func (e *TruncationError) Is(target error) bool {
	return target == ErrTruncated
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfig}, args...)...)
}
