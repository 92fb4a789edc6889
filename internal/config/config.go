package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/partial-tar-brotli/internal/archive"
	"github.com/oshokin/partial-tar-brotli/internal/logger"
)

// Config holds the settings of a packing run.
type Config struct {
	// MaxSize is the byte budget of the archive.
	MaxSize Size `yaml:"max_size"`
	// Output is the destination archive path.
	Output string `yaml:"output"`
	// Verbose prints the bytes used by every included file.
	Verbose bool `yaml:"verbose"`
	// StopAtFirstSkip stops packing at the first file that does not fit.
	StopAtFirstSkip bool `yaml:"stop_at_first_skip"`
	// Force allows overwriting an existing output file.
	Force bool `yaml:"force"`
	// Quality is the brotli compression quality.
	Quality int `yaml:"quality"`
	// WindowBits is the log2 of the brotli window size.
	WindowBits int `yaml:"window"`
	// LogLevel is the zap level name for diagnostics on stderr.
	LogLevel string `yaml:"log_level"`
	// Progress draws a progress bar on stderr.
	Progress bool `yaml:"progress"`
}

// Keys shared by flags, environment variables and viper lookups.
const (
	KeyMaxSize         = "max-size"
	KeyOutput          = "output"
	KeyVerbose         = "verbose"
	KeyStopAtFirstSkip = "stop-at-first-skip"
	KeyForce           = "force"
	KeyQuality         = "quality"
	KeyWindow          = "window"
	KeyLogLevel        = "log-level"
	KeyProgress        = "progress"
	KeyConfig          = "config"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. PARTIAL_TAR_BROTLI_MAX_SIZE.
	EnvPrefix = "PARTIAL_TAR_BROTLI"

	// DefaultLogLevel keeps stderr quiet unless something goes wrong.
	DefaultLogLevel = "warn"
)

var (
	// ErrInvalidConfig is the parent of every configuration error.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMaxSizeRequired is returned when the budget is missing or zero.
	ErrMaxSizeRequired = fmt.Errorf("%w: --%s must be a positive number of bytes", ErrInvalidConfig, KeyMaxSize)
	// ErrOutputRequired is returned when no output path is given.
	ErrOutputRequired = fmt.Errorf("%w: --%s must be provided", ErrInvalidConfig, KeyOutput)
	// ErrQualityOutOfRange is returned for unsupported brotli quality values.
	ErrQualityOutOfRange = fmt.Errorf("%w: --%s must be between %d and %d",
		ErrInvalidConfig, KeyQuality, archive.MinQuality, archive.MaxQuality)
	// ErrWindowOutOfRange is returned for unsupported brotli window sizes.
	ErrWindowOutOfRange = fmt.Errorf("%w: --%s must be between %d and %d",
		ErrInvalidConfig, KeyWindow, archive.MinWindowBits, archive.MaxWindowBits)
	// ErrUnknownLogLevel is returned for log levels zap does not know.
	ErrUnknownLogLevel = fmt.Errorf("%w: unknown --%s", ErrInvalidConfig, KeyLogLevel)
)

// Size is a byte count that unmarshals from integers or humanized strings.
type Size uint64

// ParseSize parses "16777216", "16MiB", "16 MB" and similar values.
func ParseSize(s string) (Size, error) {
	value, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: size %q: %w", ErrInvalidConfig, s, err)
	}

	return Size(value), nil
}

// UnmarshalYAML accepts scalar nodes in any format ParseSize understands.
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: size must be a scalar at line %d", ErrInvalidConfig, node.Line)
	}

	parsed, err := ParseSize(node.Value)
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

// String renders the size in IEC units.
func (s Size) String() string {
	return humanize.IBytes(uint64(s))
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Quality:    archive.DefaultQuality,
		WindowBits: archive.DefaultWindowBits,
		LogLevel:   DefaultLogLevel,
	}
}

// Load reads a YAML file on top of the defaults. The result is not validated.
func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// NewViper binds flags and PARTIAL_TAR_BROTLI_* environment variables.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	return v, nil
}

// Resolve builds the validated configuration from the config file named by
// --config (if any), the environment and the changed flags.
func Resolve(v *viper.Viper) (*Config, error) {
	cfg := Default()

	if path := v.GetString(KeyConfig); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	}

	if err := Overlay(cfg, v); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Overlay copies every value explicitly set in the environment or on the
// command line into cfg. Flag defaults never override file values.
func Overlay(cfg *Config, v *viper.Viper) error {
	if v.IsSet(KeyMaxSize) {
		size, err := ParseSize(v.GetString(KeyMaxSize))
		if err != nil {
			return err
		}

		cfg.MaxSize = size
	}

	if v.IsSet(KeyOutput) {
		cfg.Output = v.GetString(KeyOutput)
	}

	if v.IsSet(KeyVerbose) {
		cfg.Verbose = v.GetBool(KeyVerbose)
	}

	if v.IsSet(KeyStopAtFirstSkip) {
		cfg.StopAtFirstSkip = v.GetBool(KeyStopAtFirstSkip)
	}

	if v.IsSet(KeyForce) {
		cfg.Force = v.GetBool(KeyForce)
	}

	if v.IsSet(KeyQuality) {
		cfg.Quality = v.GetInt(KeyQuality)
	}

	if v.IsSet(KeyWindow) {
		cfg.WindowBits = v.GetInt(KeyWindow)
	}

	if v.IsSet(KeyLogLevel) {
		cfg.LogLevel = v.GetString(KeyLogLevel)
	}

	if v.IsSet(KeyProgress) {
		cfg.Progress = v.GetBool(KeyProgress)
	}

	return nil
}

// Validate checks required fields and ranges.
func Validate(cfg *Config) error {
	if cfg.MaxSize == 0 {
		return ErrMaxSizeRequired
	}

	if strings.TrimSpace(cfg.Output) == "" {
		return ErrOutputRequired
	}

	if cfg.Quality < archive.MinQuality || cfg.Quality > archive.MaxQuality {
		return fmt.Errorf("%w: got %d", ErrQualityOutOfRange, cfg.Quality)
	}

	if cfg.WindowBits < archive.MinWindowBits || cfg.WindowBits > archive.MaxWindowBits {
		return fmt.Errorf("%w: got %d", ErrWindowOutOfRange, cfg.WindowBits)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLogLevel, cfg.LogLevel)
	}

	return nil
}

// EncoderOptions returns the brotli settings for the archive stream.
func (c *Config) EncoderOptions() archive.Options {
	return archive.Options{
		Quality:    c.Quality,
		WindowBits: c.WindowBits,
	}
}
