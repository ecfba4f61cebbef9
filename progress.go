package scatter

// ProgressEvent represents a progress update during partitioning or joining.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Name is the fragment currently being processed, if applicable.
	Name string

	// BytesDone is the number of bytes completed across the whole stream.
	BytesDone int64

	// BytesTotal is the total bytes expected for the stream.
	// Zero indicates the total is unknown.
	BytesTotal int64

	// FragmentsDone is the number of fragments completed.
	FragmentsDone int

	// FragmentsTotal is the total number of fragments.
	FragmentsTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

const (
	// StageWriting indicates fragments are being written from the source.
	StageWriting ProgressStage = iota

	// StageJoining indicates fragments are being concatenated.
	StageJoining
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageWriting:
		return "writing"
	case StageJoining:
		return "joining"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates. Calls are made synchronously from
// the goroutine doing the I/O.
type ProgressFunc func(ProgressEvent)
