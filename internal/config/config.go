package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// AppName is used for XDG directories and the User-Agent header.
const AppName = "techdigest"

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources       Sources       `yaml:"sources"`
	Enrichment    Enrichment    `yaml:"enrichment"`
	Summarization Summarization `yaml:"summarization"`
	Output        Output        `yaml:"output"`
	Server        Server        `yaml:"server"`
	Logging       Logging       `yaml:"logging"`
}

type Sources struct {
	MaxArticlesPerSource int              `yaml:"max_articles_per_source"`
	News                 NewsConfig       `yaml:"news"`
	HackerNews           HackerNewsConfig `yaml:"hackernews"`
	Reddit               RedditConfig     `yaml:"reddit"`
	Arxiv                ArxivConfig      `yaml:"arxiv"`
}

// NewsConfig configures the search-grounded Gemini news source.
type NewsConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"api_key_env"`
	BaseURL   string        `yaml:"base_url"`
	Limit     int           `yaml:"limit"`
	Timeout   time.Duration `yaml:"timeout"`
}

type HackerNewsConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Limit   int           `yaml:"limit"`
	Timeout time.Duration `yaml:"timeout"`
}

type RedditConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ClientIDEnv     string        `yaml:"client_id_env"`
	ClientSecretEnv string        `yaml:"client_secret_env"`
	UserAgent       string        `yaml:"user_agent"`
	Subreddits      []string      `yaml:"subreddits"`
	AuthURL         string        `yaml:"auth_url"`
	BaseURL         string        `yaml:"base_url"`
	Limit           int           `yaml:"limit"`
	Timeout         time.Duration `yaml:"timeout"`
}

type ArxivConfig struct {
	Enabled bool   `yaml:"enabled"`
	Feeds   []Feed `yaml:"feeds"`
	Limit   int    `yaml:"limit"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// Enrichment configures the per-article page lookups.
type Enrichment struct {
	Enabled       bool          `yaml:"enabled"`
	Workers       int           `yaml:"workers"`
	Timeout       time.Duration `yaml:"timeout"`
	FetchContent  bool          `yaml:"fetch_content"`
	RespectRobots bool          `yaml:"respect_robots"`
	UserAgent     string        `yaml:"user_agent"`
}

type Summarization struct {
	Tiers             []string      `yaml:"tiers"`
	GroqModel         string        `yaml:"groq_model"`
	GroqURL           string        `yaml:"groq_url"`
	GroqAPIKeyEnv     string        `yaml:"groq_api_key_env"`
	HuggingFaceURL    string        `yaml:"huggingface_url"`
	HuggingFaceKeyEnv string        `yaml:"huggingface_api_key_env"`
	OllamaURL         string        `yaml:"ollama_url"`
	OllamaModel       string        `yaml:"ollama_model"`
	MaxTokens         int           `yaml:"max_tokens"`
	MaxInputChars     int           `yaml:"max_input_chars"`
	FallbackChars     int           `yaml:"fallback_chars"`
	Delay             time.Duration `yaml:"delay"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	Timeout           time.Duration `yaml:"timeout"`
}

type Output struct {
	ArchiveDir string `yaml:"archive_dir"`
	DataDir    string `yaml:"data_dir"`
	Markdown   bool   `yaml:"markdown"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for techdigest.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DataDir returns the XDG data directory for techdigest.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// ResolveConfigPath finds the config file following priority:
// explicit path > $XDG_CONFIG_HOME/techdigest/config.yaml > ./config.yaml.
// An empty path with a nil error means no file exists and defaults apply.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
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

	return "", nil
}

// Load reads and parses a config YAML file. An empty path yields the
// defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, _ := parse(nil)
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			MaxArticlesPerSource: 3,
			News: NewsConfig{
				Enabled:   true,
				Model:     "gemini-2.0-flash",
				APIKeyEnv: "GEMINI_API_KEY",
				BaseURL:   "https://generativelanguage.googleapis.com/v1beta",
				Timeout:   60 * time.Second,
			},
			HackerNews: HackerNewsConfig{
				Enabled: true,
				BaseURL: "https://hacker-news.firebaseio.com/v0",
				Timeout: 10 * time.Second,
			},
			Reddit: RedditConfig{
				Enabled:         true,
				ClientIDEnv:     "REDDIT_CLIENT_ID",
				ClientSecretEnv: "REDDIT_CLIENT_SECRET",
				UserAgent:       "techdigest-app/1.0",
				Subreddits:      []string{"technology", "programming", "MachineLearning"},
				AuthURL:         "https://www.reddit.com/api/v1/access_token",
				BaseURL:         "https://oauth.reddit.com",
				Timeout:         10 * time.Second,
			},
			Arxiv: ArxivConfig{
				Enabled: true,
				Feeds: []Feed{
					{URL: "http://rss.arxiv.org/rss/cs.AI", Name: "arXiv cs.AI"},
					{URL: "http://rss.arxiv.org/rss/cs.LG", Name: "arXiv cs.LG"},
				},
			},
		},
		Enrichment: Enrichment{
			Enabled:       true,
			Workers:       5,
			Timeout:       5 * time.Second,
			FetchContent:  true,
			RespectRobots: true,
			UserAgent:     "Mozilla/5.0 (compatible; techdigest/1.0)",
		},
		Summarization: Summarization{
			Tiers:             []string{"groq", "huggingface", "ollama"},
			GroqModel:         "llama-3.3-70b-versatile",
			GroqURL:           "https://api.groq.com/openai/v1",
			GroqAPIKeyEnv:     "GROQ_API_KEY",
			HuggingFaceURL:    "https://api-inference.huggingface.co/models/facebook/bart-large-cnn",
			HuggingFaceKeyEnv: "HF_API_KEY",
			OllamaURL:         "http://localhost:11434",
			OllamaModel:       "qwen2.5:7b",
			MaxTokens:         300,
			MaxInputChars:     1024,
			FallbackChars:     200,
			Delay:             time.Second,
			MaxRetries:        3,
			RetryBackoff:      10 * time.Second,
			Timeout:           60 * time.Second,
		},
		Output: Output{
			ArchiveDir: "archive",
			Markdown:   true,
		},
		Server:  Server{Port: 8080},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ARCHIVE_DIR"); v != "" {
		c.Output.ArchiveDir = v
	}
	if v := os.Getenv("MAX_ARTICLES_PER_SOURCE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sources.MaxArticlesPerSource = n
		}
	}
	if v := os.Getenv("REDDIT_SUBREDDITS"); v != "" {
		c.Sources.Reddit.Subreddits = splitList(v)
	}
	if v := os.Getenv("REDDIT_USER_AGENT"); v != "" {
		c.Sources.Reddit.UserAgent = v
	}
	if v := os.Getenv("GROQ_MODEL"); v != "" {
		c.Summarization.GroqModel = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.Sources.News.Model = v
	}
}

// LimitFor returns the per-source item limit, falling back to the global one.
func (c *Config) LimitFor(sourceLimit int) int {
	if sourceLimit > 0 {
		return sourceLimit
	}
	return c.Sources.MaxArticlesPerSource
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetArchiveDir returns the digest archive directory. A relative
// archive_dir is resolved under the data directory.
func (c *Config) GetArchiveDir() string {
	dir := c.Output.ArchiveDir
	if dir == "" {
		dir = "archive"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.GetDataDir(), dir)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
