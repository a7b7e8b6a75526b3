package harvest

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ForumScholar/GroupHarvest/internal/extract"
)

// Config holds all configuration for a harvest run.
type Config struct {
	// Collections are the group listing URLs to traverse, in order.
	Collections []string `yaml:"collections" json:"collections"`

	// Quota caps how many items are processed per collection per run.
	Quota int `yaml:"quota" json:"quota"`

	// Politeness delays between item visits and after page mutations.
	MinDelay time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
	Settle   time.Duration `yaml:"settle" json:"settle"`

	// CheckpointPath is the durable traversal state file.
	CheckpointPath string `yaml:"checkpoint_path" json:"checkpoint_path"`

	// OutputPath receives harvested records. The extension selects the
	// format: .json and .ndjson write JSON, anything else CSV.
	OutputPath string `yaml:"output_path" json:"output_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Browser configures the headless browser.
	Browser extract.BrowserConfig `yaml:"browser" json:"browser"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Quota:          100,
		MinDelay:       3 * time.Second,
		MaxDelay:       6 * time.Second,
		Settle:         5 * time.Second,
		CheckpointPath: "data/scraper_checkpoint.json",
		OutputPath:     "data/group_data.csv",
		LogLevel:       "info",
		Browser:        extract.DefaultBrowserConfig(),
	}
}

// LoadConfig builds a config from defaults, an optional YAML file, and
// environment variables, in increasing precedence. A .env file in the
// working directory is loaded first if present.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load(".env")

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFromEnv overlays environment variables onto the config.
func (c *Config) loadFromEnv() {
	if groups := os.Getenv("TARGET_GROUPS"); groups != "" {
		c.Collections = splitList(groups)
	}
	if quota := os.Getenv("MAX_THREADS_PER_GROUP"); quota != "" {
		if v, err := strconv.Atoi(quota); err == nil && v > 0 {
			c.Quota = v
		}
	}
	if out := os.Getenv("OUTPUT_FILE"); out != "" {
		c.OutputPath = out
	}
	if cp := os.Getenv("CHECKPOINT_FILE"); cp != "" {
		c.CheckpointPath = cp
	}
	if headless := os.Getenv("HEADLESS_MODE"); headless != "" {
		if v, err := strconv.ParseBool(headless); err == nil {
			c.Browser.Headless = v
		}
	}
	if min := os.Getenv("MIN_DELAY"); min != "" {
		if v, err := parseSeconds(min); err == nil {
			c.MinDelay = v
		}
	}
	if max := os.Getenv("MAX_DELAY"); max != "" {
		if v, err := parseSeconds(max); err == nil {
			c.MaxDelay = v
		}
	}
	if wait := os.Getenv("PAGE_LOAD_WAIT"); wait != "" {
		if v, err := parseSeconds(wait); err == nil {
			c.Settle = v
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = strings.ToLower(level)
	}
}

// parseSeconds accepts either a bare number of seconds or a Go duration
// string.
func parseSeconds(s string) (time.Duration, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(v * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the config for inconsistencies.
func (c *Config) Validate() error {
	if c.Quota <= 0 {
		return errors.New("quota must be positive")
	}
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		return errors.New("delays must not be negative")
	}
	if c.MaxDelay < c.MinDelay {
		return errors.New("max_delay must not be less than min_delay")
	}
	if c.CheckpointPath == "" {
		return errors.New("checkpoint_path is required")
	}
	for _, coll := range c.Collections {
		if !strings.HasPrefix(coll, "http://") && !strings.HasPrefix(coll, "https://") {
			return fmt.Errorf("collection %q is not an absolute URL", coll)
		}
	}
	return nil
}
