package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrMissingCredential = errors.New("OPENAI_API_KEY is not set")
	ErrInvalid           = errors.New("invalid configuration")
)

type Config struct {
	APIKey         string        `env:"OPENAI_API_KEY"`
	APIURL         string        `env:"VOXBATCH_API_URL" envDefault:"https://api.openai.com/v1"`
	Model          string        `env:"VOXBATCH_MODEL" envDefault:"whisper-1"`
	Language       string        `env:"VOXBATCH_LANGUAGE" envDefault:"ur"`
	Prompt         string        `env:"VOXBATCH_PROMPT"`
	PriorContext   bool          `env:"VOXBATCH_PRIOR_CONTEXT" envDefault:"false"`
	RequestTimeout time.Duration `env:"VOXBATCH_REQUEST_TIMEOUT" envDefault:"5m"`
	MaxAttempts    int           `env:"VOXBATCH_MAX_ATTEMPTS" envDefault:"3"`

	ChunkSize   time.Duration `env:"VOXBATCH_CHUNK_SIZE" envDefault:"30s"`
	Overlap     time.Duration `env:"VOXBATCH_OVERLAP" envDefault:"5s"`
	Workers     int           `env:"VOXBATCH_WORKERS" envDefault:"1"`
	SilenceGate bool          `env:"VOXBATCH_SILENCE_GATE" envDefault:"false"`
	SilenceDBFS float64       `env:"VOXBATCH_SILENCE_DBFS" envDefault:"-50"`

	DatasetDir   string `env:"VOXBATCH_DATASET_DIR" envDefault:"Dataset"`
	OutputDir    string `env:"VOXBATCH_OUTPUT_DIR" envDefault:"processed_data"`
	SourceFolder string `env:"VOXBATCH_SOURCE_FOLDER" envDefault:"urdu"`
	TargetFolder string `env:"VOXBATCH_TARGET_FOLDER" envDefault:"english"`

	FFmpegPath string `env:"VOXBATCH_FFMPEG" envDefault:"ffmpeg"`
	Bitrate    string `env:"VOXBATCH_BITRATE" envDefault:"64k"`
}

// Overrides holds CLI flag values that take priority over env vars. Zero
// values are ignored; pointer fields distinguish "unset" from a zero value.
type Overrides struct {
	EnvFile string
	// Environ replaces os.Environ when non-nil.
	Environ []string

	APIURL       string
	Model        string
	Language     string
	Prompt       string
	PriorContext *bool
	MaxAttempts  int
	ChunkSize    time.Duration
	Overlap      *time.Duration
	Workers      int
	SilenceGate  *bool
	OutputDir    string
	DatasetDir   string
	FFmpegPath   string
}

// Load reads configuration from the .env file, environment variables and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	environ := overrides.Environ
	if environ == nil {
		environ = os.Environ()
	}
	vars := environMap(environ)

	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		fileVars, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrInvalid, envFile, err)
		}
		for k, v := range fileVars {
			if _, set := vars[k]; !set {
				vars[k] = v
			}
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	overrides.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o Overrides) apply(cfg *Config) {
	if o.APIURL != "" {
		cfg.APIURL = o.APIURL
	}
	if o.Model != "" {
		cfg.Model = o.Model
	}
	if o.Language != "" {
		cfg.Language = o.Language
	}
	if o.Prompt != "" {
		cfg.Prompt = o.Prompt
	}
	if o.PriorContext != nil {
		cfg.PriorContext = *o.PriorContext
	}
	if o.MaxAttempts > 0 {
		cfg.MaxAttempts = o.MaxAttempts
	}
	if o.ChunkSize > 0 {
		cfg.ChunkSize = o.ChunkSize
	}
	if o.Overlap != nil {
		cfg.Overlap = *o.Overlap
	}
	if o.Workers > 0 {
		cfg.Workers = o.Workers
	}
	if o.SilenceGate != nil {
		cfg.SilenceGate = *o.SilenceGate
	}
	if o.OutputDir != "" {
		cfg.OutputDir = o.OutputDir
	}
	if o.DatasetDir != "" {
		cfg.DatasetDir = o.DatasetDir
	}
	if o.FFmpegPath != "" {
		cfg.FFmpegPath = o.FFmpegPath
	}
}

// Validate checks value ranges. The API key is checked separately by
// RequireCredential since not every command calls the remote service.
func (c *Config) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size must be positive, got %s", ErrInvalid, c.ChunkSize)
	case c.Overlap < 0:
		return fmt.Errorf("%w: overlap must not be negative, got %s", ErrInvalid, c.Overlap)
	case c.Overlap >= c.ChunkSize:
		return fmt.Errorf("%w: overlap %s must be shorter than chunk size %s", ErrInvalid, c.Overlap, c.ChunkSize)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalid, c.MaxAttempts)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalid, c.Workers)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("%w: request timeout must be positive, got %s", ErrInvalid, c.RequestTimeout)
	case c.OutputDir == "":
		return fmt.Errorf("%w: output directory is empty", ErrInvalid)
	}
	return nil
}

func environMap(environ []string) map[string]string {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars
}

func (c *Config) RequireCredential() error {
	if c.APIKey == "" {
		return ErrMissingCredential
	}
	return nil
}
