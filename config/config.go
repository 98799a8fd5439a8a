package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the investigation engine
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Search    SearchConfig    `mapstructure:"search"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig configures the reasoning model backing the coordinator and sub-agents
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model is required")
	}
	return nil
}

// AgentConfig bounds the coordinator loop and its worker pools.
// All knobs here are construction-time; running investigations never
// observe config changes.
type AgentConfig struct {
	MaxTurns             int    `mapstructure:"max_turns"`
	SubAgentMaxTurns     int    `mapstructure:"subagent_max_turns"`
	MaxSearchWorkers     int    `mapstructure:"max_search_workers"`
	MaxScrapeWorkers     int    `mapstructure:"max_scrape_workers"`
	MaxParallelSubAgents int    `mapstructure:"max_parallel_subagents"`
	ReportsDir           string `mapstructure:"reports_dir"`
}

// ProxyConfig points page fetches at the anonymizing SOCKS5 proxy.
// ClearnetFetcher selects how non-onion URLs are fetched: "torhttp"
// keeps them on the proxied path, "chromedp" renders them in a headless
// browser for JavaScript-heavy sources.
type ProxyConfig struct {
	Address         string        `mapstructure:"address"`
	ClearnetFetcher string        `mapstructure:"clearnet_fetcher"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	MaxChars        int           `mapstructure:"max_chars"`
}

func (p ProxyConfig) Validate() error {
	if strings.TrimSpace(p.Address) == "" {
		return fmt.Errorf("proxy.address is required")
	}
	return nil
}

// SearchConfig selects and bounds the search engines
type SearchConfig struct {
	Engines          []string      `mapstructure:"engines"`
	EngineTimeout    time.Duration `mapstructure:"engine_timeout"`
	ResultsPerEngine int           `mapstructure:"results_per_engine"`
}

// StorageConfig contains session and archive storage settings
type StorageConfig struct {
	Session  SessionConfig  `mapstructure:"session"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SessionConfig selects the live session store backend
type SessionConfig struct {
	Type  string      `mapstructure:"type"` // inmemory | redis
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"pass"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// PostgresConfig configures the durable investigation archive.
// Leave URL and Host empty to run without archiving.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Enabled reports whether an archive connection is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

// DSN builds a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, sslmode)
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.timeout", "120s")
	viper.SetDefault("llm.max_retries", 2)
	viper.SetDefault("agent.max_turns", 30)
	viper.SetDefault("agent.subagent_max_turns", 10)
	viper.SetDefault("agent.max_search_workers", 5)
	viper.SetDefault("agent.max_scrape_workers", 5)
	viper.SetDefault("agent.max_parallel_subagents", 4)
	viper.SetDefault("agent.reports_dir", "reports")
	viper.SetDefault("proxy.address", "127.0.0.1:9050")
	viper.SetDefault("proxy.clearnet_fetcher", "torhttp")
	viper.SetDefault("proxy.fetch_timeout", "30s")
	viper.SetDefault("proxy.max_retries", 3)
	viper.SetDefault("proxy.retry_backoff", "500ms")
	viper.SetDefault("proxy.max_body_bytes", 2<<20)
	viper.SetDefault("proxy.max_chars", 20000)
	viper.SetDefault("search.engines", []string{"ahmia", "torch", "onionland"})
	viper.SetDefault("search.engine_timeout", "45s")
	viper.SetDefault("search.results_per_engine", 30)
	viper.SetDefault("storage.session.type", "inmemory")
	viper.SetDefault("storage.session.redis.host", "localhost")
	viper.SetDefault("storage.session.redis.port", "6379")
	viper.SetDefault("storage.session.redis.ttl", "24h")
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config") // path to look for the config file in
		viper.AddConfigPath(".")        // optionally look for config in the working directory
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)                                // bin/
		viper.AddConfigPath(filepath.Join(exeDir, ".."))           // repo root
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("ROBIN")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (ROBIN_*)

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; defaults plus ROBIN_* env vars are enough.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Proxy.Validate(); err != nil {
		panic(err)
	}
	return &config
}
