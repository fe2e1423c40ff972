package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIBaseURL    string
	AccessToken   string
	OwnerRepo     string
	Branch        string
	BlogDir       string
	CommitMessage string
	ChunkLimit    int
	Stagger       time.Duration

	Addr       string
	ServeToken string
	CORSOrigin string
	LogLevel   string

	// Preferences (token, blog repository); disabled when RedisURL is empty.
	RedisURL    string
	PrefsSecret string

	// Publish history; disabled when DatabaseURL is empty.
	DatabaseURL   string
	MigrationsDir string

	MeiliURL       string
	MeiliMasterKey string

	// MirrorDir, when set, publishes into local git repositories instead of
	// the remote contents API.
	MirrorDir string

	// Payload archive; disabled when ArchiveEndpoint is empty.
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string
	ArchiveUseSSL    bool
}

func defaults() Config {
	return Config{
		APIBaseURL:    "https://api.github.com",
		Branch:        "MeatPieDay",
		BlogDir:       "ipynb",
		CommitMessage: "Put from nbpress",
		ChunkLimit:    700 * 1024,
		Stagger:       5 * time.Second,
		Addr:          ":8788",
		CORSOrigin:    "*",
		LogLevel:      "info",
		MigrationsDir: "./db/migrations",
		ArchiveBucket: "nbpress-payloads",
		ArchiveUseSSL: true,
	}
}

// Load reads configuration from the environment.
func Load() Config {
	return overlayEnv(defaults())
}

// LoadFile reads a YAML configuration file and then applies environment
// overrides on top of it.
func LoadFile(path string) (Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := file.apply(&cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return overlayEnv(cfg), nil
}

func overlayEnv(base Config) Config {
	return Config{
		APIBaseURL:    getenv("NBPRESS_API_URL", base.APIBaseURL),
		AccessToken:   getenv("NBPRESS_TOKEN", base.AccessToken),
		OwnerRepo:     getenv("NBPRESS_BLOG_REPO", base.OwnerRepo),
		Branch:        getenv("NBPRESS_BRANCH", base.Branch),
		BlogDir:       getenv("NBPRESS_BLOG_DIR", base.BlogDir),
		CommitMessage: getenv("NBPRESS_COMMIT_MESSAGE", base.CommitMessage),
		ChunkLimit:    getenvInt("NBPRESS_CHUNK_LIMIT", base.ChunkLimit),
		Stagger:       getenvDuration("NBPRESS_STAGGER", base.Stagger),

		Addr:       getenv("NBPRESS_ADDR", base.Addr),
		ServeToken: getenv("NBPRESS_SERVE_TOKEN", base.ServeToken),
		CORSOrigin: getenv("NBPRESS_CORS_ORIGIN", base.CORSOrigin),
		LogLevel:   getenv("NBPRESS_LOG_LEVEL", base.LogLevel),

		RedisURL:    getenv("REDIS_URL", base.RedisURL),
		PrefsSecret: getenv("NBPRESS_PREFS_SECRET", base.PrefsSecret),

		DatabaseURL:   getenv("DATABASE_URL", base.DatabaseURL),
		MigrationsDir: getenv("NBPRESS_MIGRATIONS_DIR", base.MigrationsDir),

		MeiliURL:       getenv("MEILI_URL", base.MeiliURL),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", base.MeiliMasterKey),

		MirrorDir: getenv("NBPRESS_MIRROR_DIR", base.MirrorDir),

		ArchiveEndpoint:  getenv("NBPRESS_ARCHIVE_ENDPOINT", base.ArchiveEndpoint),
		ArchiveAccessKey: getenv("NBPRESS_ARCHIVE_ACCESS_KEY", base.ArchiveAccessKey),
		ArchiveSecretKey: getenv("NBPRESS_ARCHIVE_SECRET_KEY", base.ArchiveSecretKey),
		ArchiveBucket:    getenv("NBPRESS_ARCHIVE_BUCKET", base.ArchiveBucket),
		ArchiveUseSSL:    getenvBool("NBPRESS_ARCHIVE_USE_SSL", base.ArchiveUseSSL),
	}
}

type fileConfig struct {
	APIBaseURL    string `yaml:"api_url"`
	AccessToken   string `yaml:"token"`
	OwnerRepo     string `yaml:"blog_repo"`
	Branch        string `yaml:"branch"`
	BlogDir       string `yaml:"blog_dir"`
	CommitMessage string `yaml:"commit_message"`
	ChunkLimit    int    `yaml:"chunk_limit"`
	Stagger       string `yaml:"stagger"`

	Server struct {
		Addr       string `yaml:"addr"`
		Token      string `yaml:"token"`
		CORSOrigin string `yaml:"cors_origin"`
	} `yaml:"server"`

	LogLevel string `yaml:"log_level"`

	Redis struct {
		URL    string `yaml:"url"`
		Secret string `yaml:"secret"`
	} `yaml:"redis"`

	Database struct {
		URL           string `yaml:"url"`
		MigrationsDir string `yaml:"migrations_dir"`
	} `yaml:"database"`

	Meili struct {
		URL       string `yaml:"url"`
		MasterKey string `yaml:"master_key"`
	} `yaml:"meili"`

	MirrorDir string `yaml:"mirror_dir"`

	Archive struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    *bool  `yaml:"use_ssl"`
	} `yaml:"archive"`
}

func (f fileConfig) apply(cfg *Config) error {
	set := func(dst *string, value string) {
		if value != "" {
			*dst = value
		}
	}
	set(&cfg.APIBaseURL, f.APIBaseURL)
	set(&cfg.AccessToken, f.AccessToken)
	set(&cfg.OwnerRepo, f.OwnerRepo)
	set(&cfg.Branch, f.Branch)
	set(&cfg.BlogDir, f.BlogDir)
	set(&cfg.CommitMessage, f.CommitMessage)
	if f.ChunkLimit != 0 {
		cfg.ChunkLimit = f.ChunkLimit
	}
	if f.Stagger != "" {
		d, err := time.ParseDuration(f.Stagger)
		if err != nil {
			return fmt.Errorf("stagger: %w", err)
		}
		cfg.Stagger = d
	}
	set(&cfg.Addr, f.Server.Addr)
	set(&cfg.ServeToken, f.Server.Token)
	set(&cfg.CORSOrigin, f.Server.CORSOrigin)
	set(&cfg.LogLevel, f.LogLevel)
	set(&cfg.RedisURL, f.Redis.URL)
	set(&cfg.PrefsSecret, f.Redis.Secret)
	set(&cfg.DatabaseURL, f.Database.URL)
	set(&cfg.MigrationsDir, f.Database.MigrationsDir)
	set(&cfg.MeiliURL, f.Meili.URL)
	set(&cfg.MeiliMasterKey, f.Meili.MasterKey)
	set(&cfg.MirrorDir, f.MirrorDir)
	set(&cfg.ArchiveEndpoint, f.Archive.Endpoint)
	set(&cfg.ArchiveAccessKey, f.Archive.AccessKey)
	set(&cfg.ArchiveSecretKey, f.Archive.SecretKey)
	set(&cfg.ArchiveBucket, f.Archive.Bucket)
	if f.Archive.UseSSL != nil {
		cfg.ArchiveUseSSL = *f.Archive.UseSSL
	}
	return nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getenvDuration accepts Go durations ("5s") or a bare number of seconds.
func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
