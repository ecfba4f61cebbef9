package archive

import "go.uber.org/zap"

// Option configures Tar and Extract.
type Option func(*config)

type config struct {
	compression Compression
	tempDir     string
	log         *zap.Logger
}

func newConfig(opts []Option) config {
	cfg := config{compression: CompressionGzip, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithCompression sets the compression Tar applies. The default is gzip.
// Extract ignores it and detects the compression from the stream.
func WithCompression(c Compression) Option {
	return func(cfg *config) {
		cfg.compression = c
	}
}

// WithTempDir sets the directory for the spool file. Empty uses os.TempDir.
func WithTempDir(dir string) Option {
	return func(cfg *config) {
		cfg.tempDir = dir
	}
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(log *zap.Logger) Option {
	return func(cfg *config) {
		if log != nil {
			cfg.log = log
		}
	}
}
