// Package config resolves command line flags, environment variables, and an
// optional config file into a single Config value.
//
// Values are looked up in viper order: flags that were set, then
// SCATTER_-prefixed environment variables (dashes become underscores), then
// the config file, then flag defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/meigma/scatter"
	"github.com/meigma/scatter/archive"
	"github.com/meigma/scatter/internal/logging"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "SCATTER"

// Keys shared by flags, environment variables, and config files.
const (
	KeyConfig      = "config"
	KeyNamesFile   = "names-file"
	KeyCount       = "count"
	KeyRandom      = "random"
	KeyOut         = "out"
	KeyCompression = "compression"
	KeyInput       = "input"
	KeyNoProgress  = "no-progress"
	KeyLogLevel    = "log-level"
	KeyOutput      = "output"
	KeyExtract     = "extract"
	KeyDigest      = "digest"
)

// Config is the resolved configuration of one run.
type Config struct {
	// Root is the directory to archive. Empty when Input is set.
	Root string

	// Input is a pre-built archive used instead of Root.
	Input string

	// Naming selects how fragment names are produced.
	Naming scatter.NameSource

	// OutputDir receives the fragments.
	OutputDir string

	// Compression applies to archives built from Root.
	Compression archive.Compression

	// Progress enables the progress bar.
	Progress bool

	// LogLevel is the minimum level logged.
	LogLevel zapcore.Level
}

// RegisterGlobalFlags adds flags shared by every command.
func RegisterGlobalFlags(fs *pflag.FlagSet) {
	fs.String(KeyConfig, "", "path to a config file (yaml, json, or toml)")
	fs.String(KeyLogLevel, "warn", "log level (debug, info, warn, error)")
}

// RegisterNamingFlags adds the fragment naming flags.
func RegisterNamingFlags(fs *pflag.FlagSet) {
	fs.StringP(KeyNamesFile, "f", "", "read fragment names from this file, one per line")
	fs.IntP(KeyCount, "n", 0, fmt.Sprintf("number of fragments to generate (default %d)", scatter.DefaultCount))
	fs.BoolP(KeyRandom, "r", false, "generate random 64-character fragment names")
}

// RegisterCompressionFlag adds the archive compression flag.
func RegisterCompressionFlag(fs *pflag.FlagSet) {
	fs.StringP(KeyCompression, "c", "gzip", "archive compression (none, gzip, zstd, lz4)")
}

// RegisterSplitFlags adds the flags of the split command.
func RegisterSplitFlags(fs *pflag.FlagSet) {
	RegisterNamingFlags(fs)
	RegisterCompressionFlag(fs)
	fs.StringP(KeyOut, "o", ".", "directory to write fragments into")
	fs.StringP(KeyInput, "i", "", "split this existing archive instead of archiving a directory")
	fs.Bool(KeyNoProgress, false, "disable the progress bar")
}

// RegisterJoinFlags adds the flags of the join command.
func RegisterJoinFlags(fs *pflag.FlagSet) {
	fs.StringP(KeyOutput, "o", "", "write the joined archive to this new file")
	fs.StringP(KeyExtract, "x", "", "unpack the joined archive into this directory")
	fs.String(KeyDigest, "", "fail unless the joined archive has this digest")
	fs.Bool(KeyNoProgress, false, "disable the progress bar")
}

// NewViper binds fs to a fresh viper instance and reads the config file
// named by the --config flag, if any.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read config file: %v", scatter.ErrConfig, err)
		}
	}
	return v, nil
}

// Load resolves the configuration of a split run. root is the positional
// directory argument and may be empty when an input archive is configured.
// Every failure wraps scatter.ErrConfig.
func Load(v *viper.Viper, root string) (Config, error) {
	naming, err := Naming(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Root:      root,
		Input:     v.GetString(KeyInput),
		Naming:    naming,
		OutputDir: v.GetString(KeyOut),
		Progress:  !v.GetBool(KeyNoProgress),
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}

	switch {
	case cfg.Root != "" && cfg.Input != "":
		return Config{}, configErrorf("a root directory and --%s are mutually exclusive", KeyInput)
	case cfg.Root == "" && cfg.Input == "":
		return Config{}, configErrorf("no root directory given")
	case cfg.Root != "":
		if err := requireDir(cfg.Root); err != nil {
			return Config{}, err
		}
	}

	if cfg.Compression, err = Compression(v); err != nil {
		return Config{}, err
	}
	if cfg.LogLevel, err = LogLevel(v); err != nil {
		return Config{}, err
	}
	if err := requireDir(cfg.OutputDir); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// JoinConfig is the resolved configuration of a join run.
type JoinConfig struct {
	// Output is a new file receiving the joined stream. Empty means stdout
	// unless Extract is set.
	Output string

	// Extract is a directory the joined archive is unpacked into.
	Extract string

	// Digest is the expected digest of the joined stream, if any.
	Digest digest.Digest

	// Progress enables the progress bar.
	Progress bool

	// LogLevel is the minimum level logged.
	LogLevel zapcore.Level
}

// LoadJoin resolves the configuration of a join run. Every failure wraps
// scatter.ErrConfig.
func LoadJoin(v *viper.Viper) (JoinConfig, error) {
	cfg := JoinConfig{
		Output:   v.GetString(KeyOutput),
		Extract:  v.GetString(KeyExtract),
		Digest:   digest.Digest(v.GetString(KeyDigest)),
		Progress: !v.GetBool(KeyNoProgress),
	}
	if cfg.Output != "" && cfg.Extract != "" {
		return JoinConfig{}, configErrorf("--%s and --%s are mutually exclusive", KeyOutput, KeyExtract)
	}
	if cfg.Digest != "" {
		if err := cfg.Digest.Validate(); err != nil {
			return JoinConfig{}, configErrorf("--%s: %v", KeyDigest, err)
		}
	}
	var err error
	if cfg.LogLevel, err = LogLevel(v); err != nil {
		return JoinConfig{}, err
	}
	return cfg, nil
}

// Naming resolves the naming flags into a NameSource.
//
// A names file excludes both --count and --random. Without any naming flag
// the default sequential naming is used; --random alone keeps the default
// count.
func Naming(v *viper.Viper) (scatter.NameSource, error) {
	file := v.GetString(KeyNamesFile)
	countSet := v.IsSet(KeyCount)
	random := v.GetBool(KeyRandom)

	if file != "" {
		if countSet || random {
			return nil, configErrorf("--%s cannot be combined with --%s or --%s", KeyNamesFile, KeyCount, KeyRandom)
		}
		return scatter.NameList{Path: file}, nil
	}

	n := scatter.DefaultCount
	if countSet {
		n = v.GetInt(KeyCount)
		if n <= 0 {
			return nil, configErrorf("--%s must be positive, got %d", KeyCount, n)
		}
	}
	return scatter.Count{N: n, Random: random}, nil
}

// Compression resolves the configured archive compression.
func Compression(v *viper.Viper) (archive.Compression, error) {
	c, err := archive.ParseCompression(v.GetString(KeyCompression))
	if err != nil {
		return c, configErrorf("%v", err)
	}
	return c, nil
}

// LogLevel resolves the configured log level.
func LogLevel(v *viper.Viper) (zapcore.Level, error) {
	lvl, err := logging.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return lvl, configErrorf("%v", err)
	}
	return lvl, nil
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return configErrorf("directory %s does not exist", path)
		}
		return configErrorf("%v", err)
	}
	if !info.IsDir() {
		return configErrorf("%s is not a directory", path)
	}
	return nil
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{scatter.ErrConfig}, args...)...)
}
