package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// ErrInvalid marks a configuration that cannot be used. It is fatal: commands
// return it before any row is processed.
var ErrInvalid = eris.New("invalid configuration")

type Config struct {
	Input      Input      `yaml:"input"`
	Merge      Merge      `yaml:"merge"`
	Judge      Judge      `yaml:"judge"`
	Classify   Classify   `yaml:"classify"`
	Validation Validation `yaml:"validation"`
	Cache      Cache      `yaml:"cache"`
	Export     Export     `yaml:"export"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Input struct {
	Metadata string `yaml:"metadata"`
	Reviews  string `yaml:"reviews"`
	Feeds    []Feed `yaml:"feeds"`
}

// Feed is an RSS/Atom source whose items are reviews of a single location.
type Feed struct {
	URL        string `yaml:"url"`
	Name       string `yaml:"name"`
	LocationID string `yaml:"location_id"`
}

type Merge struct {
	Timezone    string   `yaml:"timezone"`
	DropColumns []string `yaml:"drop_columns"`
	Required    []string `yaml:"required"`
}

type Judge struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	OllamaURL       string `yaml:"ollama_url"`
	OpenAIModel     string `yaml:"openai_model"`
	OpenAIURL       string `yaml:"openai_url"`
	APIKeyEnv       string `yaml:"api_key_env"`
	AnthropicModel  string `yaml:"anthropic_model"`
	AnthropicKeyEnv string `yaml:"anthropic_key_env"`
	GeminiModel     string `yaml:"gemini_model"`
	GeminiKeyEnv    string `yaml:"gemini_key_env"`
	MaxTokens       int    `yaml:"max_tokens"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

type Classify struct {
	Workers     int   `yaml:"workers"`
	SampleStart int   `yaml:"sample_start"`
	SampleSize  int   `yaml:"sample_size"`
	Seed        int64 `yaml:"seed"`
}

type Validation struct {
	GroundTruth     string `yaml:"ground_truth"`
	Limit           int    `yaml:"limit"`
	RelevanceColumn string `yaml:"relevance_column"`
	QualityColumn   string `yaml:"quality_column"`
}

type Cache struct {
	RedisURL string `yaml:"redis_url"`
	TTLHours int    `yaml:"ttl_hours"`
}

type Export struct {
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
	S3Region string `yaml:"s3_region"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

var knownProviders = map[string]bool{
	"ollama":    true,
	"openai":    true,
	"anthropic": true,
	"gemini":    true,
}

// ConfigDir returns the XDG config directory for reviewguard.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "reviewguard")
}

// DataDir returns the XDG data directory for reviewguard.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "reviewguard")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/reviewguard/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", eris.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", eris.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'reviewguard init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "reading config")
	}
	return parse(data)
}

// LoadEnv loads .env files next to the config and in the working directory.
// Variables already present in the environment are never overwritten.
func LoadEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}

	seen := make(map[string]bool)
	for _, path := range candidates {
		abs, err := filepath.Abs(path)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return eris.Wrapf(err, "loading env file %s", abs)
		}
	}
	return nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Merge: Merge{
			Timezone: "America/New_York",
			DropColumns: []string{
				"num_of_reviews", "avg_rating", "price", "MISC", "state", "user_id",
				"relative_results", "url", "description", "pics", "resp",
			},
			Required: []string{"name", "category", "address", "hours", "text", "time"},
		},
		Judge: Judge{
			Provider:        "openai",
			Model:           "qwen2.5:7b",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o",
			OpenAIURL:       "https://api.openai.com/v1",
			APIKeyEnv:       "OPENAI_API_KEY",
			AnthropicModel:  "claude-sonnet-4-5",
			AnthropicKeyEnv: "ANTHROPIC_API_KEY",
			GeminiModel:     "gemini-2.5-flash",
			GeminiKeyEnv:    "GEMINI_API_KEY",
			MaxTokens:       512,
			TimeoutSeconds:  60,
		},
		Classify: Classify{
			Workers:     4,
			SampleStart: 100,
			SampleSize:  50,
			Seed:        42,
		},
		Validation: Validation{
			Limit:           10,
			RelevanceColumn: "Relevance Score",
			QualityColumn:   "Quality Score",
		},
		Cache:   Cache{TTLHours: 168},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, eris.Wrap(err, "parsing config")
	}

	return cfg, nil
}

// Validate reports settings that would make every row fail. The returned
// error wraps ErrInvalid.
func (c *Config) Validate() error {
	var problems []string

	if !knownProviders[strings.ToLower(c.Judge.Provider)] {
		problems = append(problems, "unknown judge provider "+quote(c.Judge.Provider))
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, "unknown timezone "+quote(c.Merge.Timezone))
	}
	if c.Classify.Workers < 0 {
		problems = append(problems, "classify.workers must not be negative")
	}
	if c.Classify.SampleStart < 0 || c.Classify.SampleSize < 0 {
		problems = append(problems, "classify sample bounds must not be negative")
	}
	if c.Judge.TimeoutSeconds <= 0 {
		problems = append(problems, "judge.timeout_seconds must be positive")
	}
	if c.Validation.RelevanceColumn == "" || c.Validation.QualityColumn == "" {
		problems = append(problems, "validation columns must be named")
	}

	if len(problems) == 0 {
		return nil
	}
	return eris.Wrap(ErrInvalid, strings.Join(problems, "; "))
}

// Location returns the timezone used to render review timestamps.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Merge.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, eris.Wrapf(err, "loading timezone %s", tz)
	}
	return loc, nil
}

// JudgeTimeout returns the per-call deadline for the judge.
func (c *Config) JudgeTimeout() time.Duration {
	return time.Duration(c.Judge.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long judge replies stay cached.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func quote(s string) string {
	return "\"" + s + "\""
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
