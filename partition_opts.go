package scatter

import "go.uber.org/zap"

// PartitionOption configures a Partitioner.
type PartitionOption func(*Partitioner)

// PartitionWithLogger sets the logger. The default discards all output.
func PartitionWithLogger(log *zap.Logger) PartitionOption {
	return func(p *Partitioner) {
		if log != nil {
			p.log = log
		}
	}
}

// PartitionWithProgress sets a callback invoked as fragment bytes are written.
func PartitionWithProgress(fn ProgressFunc) PartitionOption {
	return func(p *Partitioner) {
		p.progress = fn
	}
}

// PartitionWithBufferSize sets the copy buffer size. Values <= 0 use the
// default of 32 KiB.
func PartitionWithBufferSize(n int) PartitionOption {
	return func(p *Partitioner) {
		p.bufSize = n
	}
}
