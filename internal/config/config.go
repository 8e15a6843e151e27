package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIAddr        string `yaml:"api_addr"`
	AllowedOrigins string `yaml:"allowed_origins"`

	LLMProviders         string `yaml:"llm_providers"`
	Model                string `yaml:"model"`
	ThinkingBudget       int    `yaml:"thinking_budget"`
	ProviderCooldownSecs int    `yaml:"provider_cooldown_seconds"`
	MaxConcurrency       int    `yaml:"max_concurrency"`
	PageChars            int    `yaml:"page_chars"`
	DownloadTimeoutSecs  int    `yaml:"download_timeout_seconds"`
	MaxUploadBytes       int64  `yaml:"max_upload_bytes"`
	ArxivPDFBase         string `yaml:"arxiv_pdf_base"`

	CacheBackend    string `yaml:"cache_backend"`
	CacheDir        string `yaml:"cache_dir"`
	CacheSizeLimit  int64  `yaml:"cache_size_limit"`
	CacheMaxEntries int    `yaml:"cache_max_entries"`

	PostgresURL string `yaml:"postgres_url"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`

	TemporalAddress   string `yaml:"temporal_address"`
	TemporalTaskQueue string `yaml:"temporal_task_queue"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Defaults() Config {
	return Config{
		APIAddr:              ":1919",
		AllowedOrigins:       "*",
		LLMProviders:         "gemini",
		Model:                "gemini-2.5-flash",
		ThinkingBudget:       2000,
		ProviderCooldownSecs: 900,
		MaxConcurrency:       4,
		PageChars:            6000,
		DownloadTimeoutSecs:  30,
		MaxUploadBytes:       50 << 20,
		ArxivPDFBase:         "https://arxiv.org/pdf/",
		CacheBackend:         "disk",
		CacheDir:             "./gemini_cache",
		CacheSizeLimit:       1_000_000_000,
		CacheMaxEntries:      1024,
		S3Region:             "us-east-1",
		TemporalTaskQueue:    "verixiv",
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load starts from defaults, applies the YAML file named by VERIXIV_CONFIG_FILE
// when set, then applies environment overrides.
func Load() (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("VERIXIV_CONFIG_FILE")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.APIAddr = getenv("VERIXIV_API_ADDR", c.APIAddr)
	if os.Getenv("VERIXIV_API_ADDR") == "" {
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			c.APIAddr = ":" + port
		}
	}
	c.AllowedOrigins = getenv("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.LLMProviders = getenv("VERIXIV_LLM_PROVIDERS", c.LLMProviders)
	c.Model = getenv("VERIXIV_MODEL", c.Model)
	c.ThinkingBudget = getenvInt("VERIXIV_THINKING_BUDGET", c.ThinkingBudget)
	c.ProviderCooldownSecs = getenvInt("VERIXIV_PROVIDER_COOLDOWN_SECONDS", c.ProviderCooldownSecs)
	c.MaxConcurrency = getenvInt("VERIXIV_MAX_CONCURRENCY", c.MaxConcurrency)
	c.PageChars = getenvInt("VERIXIV_PAGE_CHARS", c.PageChars)
	c.DownloadTimeoutSecs = getenvInt("VERIXIV_DOWNLOAD_TIMEOUT_SECONDS", c.DownloadTimeoutSecs)
	c.MaxUploadBytes = getenvInt64("VERIXIV_MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.ArxivPDFBase = getenv("VERIXIV_ARXIV_PDF_BASE", c.ArxivPDFBase)
	c.CacheBackend = strings.ToLower(getenv("VERIXIV_CACHE_BACKEND", c.CacheBackend))
	c.CacheDir = getenv("VERIXIV_CACHE_DIR", c.CacheDir)
	c.CacheSizeLimit = getenvInt64("VERIXIV_CACHE_SIZE_LIMIT", c.CacheSizeLimit)
	c.CacheMaxEntries = getenvInt("VERIXIV_CACHE_MAX_ENTRIES", c.CacheMaxEntries)
	c.PostgresURL = getenv("VERIXIV_POSTGRES_URL", c.PostgresURL)
	c.RedisAddr = getenv("VERIXIV_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getenv("VERIXIV_REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getenvInt("VERIXIV_REDIS_DB", c.RedisDB)
	c.S3Bucket = getenv("VERIXIV_S3_BUCKET", c.S3Bucket)
	c.S3Region = getenv("VERIXIV_S3_REGION", c.S3Region)
	c.S3Endpoint = getenv("VERIXIV_S3_ENDPOINT", c.S3Endpoint)
	c.S3AccessKey = getenv("VERIXIV_S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = getenv("VERIXIV_S3_SECRET_KEY", c.S3SecretKey)
	c.TemporalAddress = getenv("VERIXIV_TEMPORAL_ADDRESS", c.TemporalAddress)
	c.TemporalTaskQueue = getenv("VERIXIV_TEMPORAL_TASK_QUEUE", c.TemporalTaskQueue)
	c.LogLevel = getenv("VERIXIV_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenv("VERIXIV_LOG_FORMAT", c.LogFormat)
}

// Validate checks the settings the scoring pipeline cannot run without.
func (c Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max concurrency must be >= 1, got %d", c.MaxConcurrency)
	}
	if c.PageChars < 1 {
		return fmt.Errorf("page chars must be >= 1, got %d", c.PageChars)
	}
	switch c.CacheBackend {
	case "memory", "disk":
	case "postgres":
		if c.PostgresURL == "" {
			return fmt.Errorf("cache backend postgres requires VERIXIV_POSTGRES_URL")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("cache backend redis requires VERIXIV_REDIS_ADDR")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("cache backend s3 requires VERIXIV_S3_BUCKET")
		}
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.CacheBackend)
	}
	return nil
}

// Origins splits AllowedOrigins on commas.
func (c Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, fallback string) string {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(k string, fallback int) int {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvInt64(k string, fallback int64) int64 {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// accept 1e9 style values
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil {
			return fallback
		}
		return int64(f)
	}
	return n
}
