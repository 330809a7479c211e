package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the run configuration. Loaded from a YAML file layered over
// defaults; the generation API key may come from the environment instead.
type Config struct {
	// Output is the SQLite database the assembled graph is written to.
	// Empty disables persistence.
	Output string `yaml:"output"`

	// Workers bounds parallel file extraction. Zero means NumCPU.
	Workers int `yaml:"workers"`

	LogLevel string `yaml:"log_level"`

	Resolver   ResolverConfig   `yaml:"resolver"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Community  CommunityConfig  `yaml:"community"`
	Fallback   FallbackConfig   `yaml:"fallback"`
}

type ResolverConfig struct {
	QueryTimeout Duration `yaml:"query_timeout"`
	StartTimeout Duration `yaml:"start_timeout"`
	// IdleTimeout closes a language server unused for this long; the next
	// query starts a fresh one.
	IdleTimeout Duration `yaml:"idle_timeout"`
	// BreakerThreshold is the consecutive-timeout count that takes a
	// language's server out of service for the rest of the run.
	BreakerThreshold int `yaml:"breaker_threshold"`
}

type SummarizerConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Model             string   `yaml:"model"`
	BaseURL           string   `yaml:"base_url"`
	APIKey            string   `yaml:"api_key"`
	MaxDepth          int      `yaml:"max_depth"`
	MaxRetries        int      `yaml:"max_retries"`
	CallTimeout       Duration `yaml:"call_timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
}

type CommunityConfig struct {
	MinSize int `yaml:"min_size"`
}

type FallbackConfig struct {
	MaxUnitLines int `yaml:"max_unit_lines"`
	WindowLines  int `yaml:"window_lines"`
}

// Duration parses YAML strings like "5s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Resolver: ResolverConfig{
			QueryTimeout:     Duration(5 * time.Second),
			StartTimeout:     Duration(30 * time.Second),
			IdleTimeout:      Duration(2 * time.Minute),
			BreakerThreshold: 3,
		},
		Summarizer: SummarizerConfig{
			Enabled:           true,
			MaxDepth:          10,
			MaxRetries:        3,
			CallTimeout:       Duration(60 * time.Second),
			RequestsPerSecond: 2,
		},
		Community: CommunityConfig{MinSize: 2},
		Fallback:  FallbackConfig{MaxUnitLines: 200, WindowLines: 100},
	}
}

// Load reads a YAML config file over defaults. An empty path returns the
// defaults. OPENAI_API_KEY in the environment wins over the file so keys
// stay out of checked-in config.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Summarizer.APIKey = key
	}
	return cfg, nil
}
