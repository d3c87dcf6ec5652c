package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type BlobConfig struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// ScoringConfig points at the scoring/extraction collaborator service.
type ScoringConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SocialConfig holds client-credential settings for the social-link platform.
type SocialConfig struct {
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	UserAgent       string `yaml:"user_agent"`
	TokenURL        string `yaml:"token_url"`
	APIBaseURL      string `yaml:"api_base_url"`
	MaxPostAgeHours int    `yaml:"max_post_age_hours"`
}

// PipelineConfig tunes the schedulers and worker pools.
type PipelineConfig struct {
	FetchWorkers             int    `yaml:"fetch_workers"`
	ProcessWorkers           int    `yaml:"process_workers"`
	FetchTickSeconds         int    `yaml:"fetch_tick_seconds"`
	BriefTickSeconds         int    `yaml:"brief_tick_seconds"`
	MaxProcessRetries        int    `yaml:"max_process_retries"`
	FullContentThreshold     int    `yaml:"full_content_threshold"`
	MaxReportItems           int    `yaml:"max_report_items"`
	StuckSourceMinutes       int    `yaml:"stuck_source_minutes"`
	StuckBriefMinutes        int    `yaml:"stuck_brief_minutes"`
	ItemSweepSeconds         int    `yaml:"item_sweep_seconds"`
	ItemRequeueMinutes       int    `yaml:"item_requeue_minutes"`
	ItemSweepBatch           int    `yaml:"item_sweep_batch"`
	FetchTimeoutSeconds      int    `yaml:"fetch_timeout_seconds"`
	WebExtractTimeoutSeconds int    `yaml:"web_extract_timeout_seconds"`
	EmailDomain              string `yaml:"email_domain"`
}

type Config struct {
	DB       DBConfig       `yaml:"db"`
	MQ       MQConfig       `yaml:"mq"`
	Redis    RedisConfig    `yaml:"redis"`
	Server   ServerConfig   `yaml:"server"`
	Blob     BlobConfig     `yaml:"blob"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Social   SocialConfig   `yaml:"social"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// Load reads config/base.yaml, overlays an optional <CONFIG_ENV>.yaml, then
// applies environment variable overrides. Missing pipeline knobs get defaults.
func Load() (*Config, error) {
	configDir := getEnv("CONFIG_DIR", "config")
	env := getEnv("CONFIG_ENV", "local")

	var cfg Config
	if err := loadYAMLInto(filepath.Join(configDir, "base.yaml"), &cfg); err != nil {
		return nil, fmt.Errorf("failed to load base.yaml: %w", err)
	}

	if env != "" && env != "base" {
		envFile := filepath.Join(configDir, env+".yaml")
		if _, err := os.Stat(envFile); err == nil {
			if err := loadYAMLInto(envFile, &cfg); err != nil {
				return nil, fmt.Errorf("failed to load %s.yaml: %w", env, err)
			}
		}
	}

	overrideFromEnv(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

func loadYAMLInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.DB.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.DB.Port = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.DB.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.DB.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.DB.Name = v
	}
	if v := os.Getenv("MQ_URL"); v != "" {
		cfg.MQ.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("SCORING_SERVICE_URL"); v != "" {
		cfg.Scoring.URL = v
	}
	if v := os.Getenv("SOCIAL_CLIENT_ID"); v != "" {
		cfg.Social.ClientID = v
	}
	if v := os.Getenv("SOCIAL_CLIENT_SECRET"); v != "" {
		cfg.Social.ClientSecret = v
	}
	if v := os.Getenv("BLOB_BUCKET"); v != "" {
		cfg.Blob.Bucket = v
	}
	if v := os.Getenv("BLOB_ENDPOINT"); v != "" {
		cfg.Blob.Endpoint = v
	}
	if v := os.Getenv("BLOB_ACCESS_KEY"); v != "" {
		cfg.Blob.AccessKey = v
	}
	if v := os.Getenv("BLOB_SECRET_KEY"); v != "" {
		cfg.Blob.SecretKey = v
	}
}

func applyDefaults(cfg *Config) {
	p := &cfg.Pipeline
	if p.FetchWorkers == 0 {
		p.FetchWorkers = 4
	}
	if p.ProcessWorkers == 0 {
		p.ProcessWorkers = 4
	}
	if p.FetchTickSeconds == 0 {
		p.FetchTickSeconds = 60
	}
	if p.BriefTickSeconds == 0 {
		p.BriefTickSeconds = 60
	}
	if p.MaxProcessRetries == 0 {
		p.MaxProcessRetries = 3
	}
	if p.FullContentThreshold == 0 {
		p.FullContentThreshold = 2000
	}
	if p.MaxReportItems == 0 {
		p.MaxReportItems = 20
	}
	if p.StuckSourceMinutes == 0 {
		p.StuckSourceMinutes = 15
	}
	if p.StuckBriefMinutes == 0 {
		p.StuckBriefMinutes = 120
	}
	if p.ItemSweepSeconds == 0 {
		p.ItemSweepSeconds = 300
	}
	if p.ItemRequeueMinutes == 0 {
		p.ItemRequeueMinutes = 15
	}
	if p.ItemSweepBatch == 0 {
		p.ItemSweepBatch = 500
	}
	if p.FetchTimeoutSeconds == 0 {
		p.FetchTimeoutSeconds = 30
	}
	if p.WebExtractTimeoutSeconds == 0 {
		p.WebExtractTimeoutSeconds = 15
	}
	if p.EmailDomain == "" {
		p.EmailDomain = "in.briefd.local"
	}
	if cfg.Scoring.TimeoutSeconds == 0 {
		cfg.Scoring.TimeoutSeconds = 60
	}
	if cfg.Social.MaxPostAgeHours == 0 {
		cfg.Social.MaxPostAgeHours = 72
	}
	if cfg.Social.UserAgent == "" {
		cfg.Social.UserAgent = "briefd/1.0"
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
