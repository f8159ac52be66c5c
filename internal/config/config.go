package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "ghost.yaml"

// Config holds all ghostbot configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Persona string `yaml:"persona"` // assistant name in prompts

	// Chat transport
	Telegram TelegramConfig `yaml:"telegram"`

	// Model configuration
	LLM LLMConfig `yaml:"llm"`

	// Conversation memory
	Memory MemoryConfig `yaml:"memory"`

	// Collaborators
	Research   ResearchConfig   `yaml:"research"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Imaging    ImagingConfig    `yaml:"imaging"`
	Documents  DocumentsConfig  `yaml:"documents"`

	// Streaming output
	Render RenderConfig `yaml:"render"`

	// Observability
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// TelegramConfig configures the bot transport.
type TelegramConfig struct {
	Token         string `yaml:"token"`
	PollTimeout   int    `yaml:"poll_timeout"`   // long-poll seconds
	MaxConcurrent int    `yaml:"max_concurrent"` // in-flight updates
	Debug         bool   `yaml:"debug"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Listen    string `yaml:"listen"` // empty disables the endpoint
	Path      string `yaml:"path"`
	UsageFile string `yaml:"usage_file"` // token accounting; empty keeps it in memory
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ghost",
		Version: "1.0.0",
		Persona: "GHOST",

		Telegram: TelegramConfig{
			PollTimeout:   60,
			MaxConcurrent: 64,
		},

		LLM: LLMConfig{
			Model:   "gemini-2.5-flash",
			Timeout: "90s",
			Safety:  DefaultSafety(),
		},

		Memory: MemoryConfig{
			Driver:           "sqlite",
			DatabasePath:     "data/context.db",
			RedisPrefix:      "ghost:context:",
			SessionTTL:       "12h",
			FileContextLimit: 4000,
			Timezone:         "Asia/Jakarta",
			TimezoneLabel:    "WIB",
		},

		Research: ResearchConfig{
			MaxResults: 10,
			Region:     "id-id",
			Timeout:    "30s",
			CacheTTL:   "30m",
			CacheSize:  500,
		},

		Extraction: ExtractionConfig{
			Timeout:   "20s",
			MinChars:  150,
			MaxBytes:  2 << 20,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		},

		Imaging: ImagingConfig{
			Endpoint: "https://api-inference.huggingface.co/models/stabilityai/stable-diffusion-xl-base-1.0",
			Timeout:  "120s",
		},

		Documents: DocumentsConfig{
			MaxBytes: 5 << 20,
		},

		Render: RenderConfig{
			EditInterval:     "1.2s",
			SummaryThreshold: 3800,
			MessageLimit:     4096,
		},

		Metrics: MetricsConfig{
			Path: "/metrics",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		c.Telegram.Token = token
	}

	// A single key is appended; a list replaces.
	if keys := os.Getenv("GEMINI_API_KEYS"); keys != "" {
		c.LLM.APIKeys = splitList(keys)
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && !contains(c.LLM.APIKeys, key) {
		c.LLM.APIKeys = append(c.LLM.APIKeys, key)
	}

	if token := os.Getenv("HUGGINGFACE_API_TOKEN"); token != "" {
		c.Imaging.APIToken = token
	}

	if path := os.Getenv("GHOST_DB"); path != "" {
		c.Memory.DatabasePath = path
	}
	if addr := os.Getenv("GHOST_REDIS_ADDR"); addr != "" {
		c.Memory.RedisAddr = addr
		c.Memory.Driver = "redis"
	}

	if level := os.Getenv("GHOST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token not configured (set TELEGRAM_BOT_TOKEN)")
	}
	return c.ValidateCore()
}

// ValidateCore checks everything except transport credentials. Used by the
// one-shot console command, which never talks to the bot API.
func (c *Config) ValidateCore() error {
	if len(c.LLM.APIKeys) == 0 {
		return fmt.Errorf("no model API keys configured (set GEMINI_API_KEYS or GEMINI_API_KEY)")
	}
	switch c.Memory.Driver {
	case "sqlite":
		if c.Memory.DatabasePath == "" {
			return fmt.Errorf("memory.database_path is required for the sqlite driver")
		}
	case "redis":
		if c.Memory.RedisAddr == "" {
			return fmt.Errorf("memory.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("invalid memory driver: %s (valid: sqlite, redis)", c.Memory.Driver)
	}
	if _, err := c.Memory.Location(); err != nil {
		return err
	}
	if c.Render.MessageLimit <= 0 || c.Render.SummaryThreshold <= 0 {
		return fmt.Errorf("render limits must be positive")
	}
	for category, threshold := range c.LLM.Safety {
		if !strings.HasPrefix(category, "HARM_CATEGORY_") {
			return fmt.Errorf("invalid safety category %q", category)
		}
		if !strings.HasPrefix(strings.ToUpper(threshold), "BLOCK_") && !strings.EqualFold(threshold, "OFF") {
			return fmt.Errorf("invalid safety threshold %q for %s", threshold, category)
		}
	}
	return nil
}

// GetLLMTimeout returns the LLM timeout as a Duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 90*time.Second)
}

// GetSessionTTL returns the conversation expiry as a Duration.
func (c *Config) GetSessionTTL() time.Duration {
	return parseDuration(c.Memory.SessionTTL, 12*time.Hour)
}

// GetSearchTimeout returns the web search timeout.
func (c *Config) GetSearchTimeout() time.Duration {
	return parseDuration(c.Research.Timeout, 30*time.Second)
}

// GetCacheTTL returns the search cache lifetime.
func (c *Config) GetCacheTTL() time.Duration {
	return parseDuration(c.Research.CacheTTL, 30*time.Minute)
}

// GetExtractionTimeout returns the page extraction timeout.
func (c *Config) GetExtractionTimeout() time.Duration {
	return parseDuration(c.Extraction.Timeout, 20*time.Second)
}

// GetImagingTimeout returns the image synthesis timeout.
func (c *Config) GetImagingTimeout() time.Duration {
	return parseDuration(c.Imaging.Timeout, 120*time.Second)
}

// GetEditInterval returns the minimum gap between interim edits.
func (c *Config) GetEditInterval() time.Duration {
	return parseDuration(c.Render.EditInterval, 1200*time.Millisecond)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
