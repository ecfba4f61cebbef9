package scatter

// Fragment pairs a fragment name with its planned size in bytes.
type Fragment struct {
	Name string
	Size int64
}

// Plan is an ordered, validated fragment layout covering a stream exactly
// once. The zero value is not a valid plan; use NewPlan.
type Plan struct {
	total     int64
	fragments []Fragment
}

// NewPlan computes the fragment sizes for a stream of total bytes split
// across len(names) fragments and pairs them with names in order.
//
// The plan is validated before it is returned; see PlanSizes. Names must be
// distinct single path elements, so a bad name fails here with ErrConfig
// rather than part way through a run.
func NewPlan(total int64, names []string) (Plan, error) {
	sizes, err := PlanSizes(total, len(names))
	if err != nil {
		return Plan{}, err
	}

	seen := make(map[string]struct{}, len(names))
	fragments := make([]Fragment, len(names))
	for i, name := range names {
		if err := validateName(name); err != nil {
			return Plan{}, configErrorf("fragment name %q: %v", name, err)
		}
		if _, dup := seen[name]; dup {
			return Plan{}, configErrorf("duplicate fragment name %q", name)
		}
		seen[name] = struct{}{}
		fragments[i] = Fragment{Name: name, Size: sizes[i]}
	}
	return Plan{total: total, fragments: fragments}, nil
}

// NewPlanFrom is NewPlan with names taken from src. Generated names are
// only produced once the layout for their count is known to be valid, so
// an oversized count fails without allocating a name per fragment.
func NewPlanFrom(total int64, src NameSource) (Plan, error) {
	if c, ok := src.(Count); ok && c.N > 0 {
		if err := CheckLayout(total, c.N); err != nil {
			return Plan{}, err
		}
	}
	names, err := src.Names()
	if err != nil {
		return Plan{}, err
	}
	return NewPlan(total, names)
}

// PlanSizes returns count fragment sizes for a stream of total bytes.
//
// With base = total/count, fragment i < count-1 has size base-i and the last
// fragment holds the remainder. The layout is rejected with a *PlanError when
// count exceeds total, any size is not positive, or the remainder equals or
// falls below an earlier size. Sizes are never adjusted to fit.
func PlanSizes(total int64, count int) ([]int64, error) {
	base, last, err := checkLayout(total, count)
	if err != nil {
		return nil, err
	}
	sizes := make([]int64, count)
	for i := range count - 1 {
		sizes[i] = base - int64(i)
	}
	sizes[count-1] = last
	return sizes, nil
}

// CheckLayout reports whether total bytes split into count fragments gives
// a valid layout. It returns the same *PlanError as PlanSizes without
// materializing the sizes, so it is safe to call with any count.
func CheckLayout(total int64, count int) error {
	_, _, err := checkLayout(total, count)
	return err
}

// maxErrorSizes bounds the size list attached to a *PlanError.
const maxErrorSizes = 64

// checkLayout validates the layout arithmetically and returns the largest
// regular size and the remainder.
func checkLayout(total int64, count int) (base, last int64, err error) {
	if count <= 0 {
		return 0, 0, &PlanError{Total: total, Count: count, Reason: "fragment count must be positive"}
	}
	if total < 0 {
		return 0, 0, &PlanError{Total: total, Count: count, Reason: "total length is negative"}
	}
	if int64(count) > total {
		return 0, 0, &PlanError{Total: total, Count: count, Reason: "fragment count exceeds total length"}
	}

	base = total / int64(count)
	if count == 1 {
		return base, total, nil
	}
	// The smallest regular size is base-(count-2).
	n := int64(count - 1)
	if n-1 >= base {
		return 0, 0, &PlanError{Total: total, Count: count, Reason: "fragment size is not positive"}
	}
	// n*base <= total and n*(n-1) < n*base, so neither product overflows.
	last = total - (n*base - n*(n-1)/2)

	// Non-final sizes are consecutive, so a collision is any value in
	// [base-(count-2), base].
	if last >= base-(n-1) && last <= base {
		return 0, 0, &PlanError{Total: total, Count: count, Sizes: errorSizes(base, last, count),
			Reason: "remainder collides with an earlier fragment size"}
	}
	if last < base {
		return 0, 0, &PlanError{Total: total, Count: count, Sizes: errorSizes(base, last, count),
			Reason: "remainder is smaller than the largest fragment"}
	}
	return base, last, nil
}

// errorSizes lists the rejected layout for error messages, or nil when it
// is too long to be useful.
func errorSizes(base, last int64, count int) []int64 {
	if count > maxErrorSizes {
		return nil
	}
	sizes := make([]int64, count)
	for i := range count - 1 {
		sizes[i] = base - int64(i)
	}
	sizes[count-1] = last
	return sizes
}

// Total returns the stream length the plan covers.
func (p Plan) Total() int64 { return p.total }

// Len returns the number of fragments.
func (p Plan) Len() int { return len(p.fragments) }

// Fragments returns a copy of the fragments in stream order.
func (p Plan) Fragments() []Fragment {
	out := make([]Fragment, len(p.fragments))
	copy(out, p.fragments)
	return out
}

// Names returns the fragment names in stream order.
func (p Plan) Names() []string {
	names := make([]string, len(p.fragments))
	for i, f := range p.fragments {
		names[i] = f.Name
	}
	return names
}

// Sizes returns the planned sizes in stream order.
func (p Plan) Sizes() []int64 {
	sizes := make([]int64, len(p.fragments))
	for i, f := range p.fragments {
		sizes[i] = f.Size
	}
	return sizes
}
