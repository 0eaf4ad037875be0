package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Apify      ApifyConfig
	Perplexity PerplexityConfig
	Postgres   PostgresConfig
	S3         S3Config
	Scheduler  SchedulerConfig
	Pipeline   PipelineConfig
	IGSession  string
	ProxyURL   string
	DBPath     string
	LogLevel   string
}

type ApifyConfig struct {
	Token        string
	HashtagActor string
	ProfileActor string
}

type PerplexityConfig struct {
	APIKey string
	Model  string
}

type PostgresConfig struct {
	URL string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type SchedulerConfig struct {
	Cron string
	Tags []string
}

// PipelineConfig holds the pacing and sizing knobs for a run. Defaults are
// tuned against the discovery target's anti-abuse behaviour; override via
// config/pipeline.yaml.
type PipelineConfig struct {
	SearchLimit      int `yaml:"search_limit"`
	DiscoveryCap     int `yaml:"discovery_cap"`
	GCEvery          int `yaml:"gc_every"`
	BatchSize        int `yaml:"batch_size"`
	GroupSize        int `yaml:"group_size"`
	MaxInFlight      int `yaml:"max_in_flight"`
	ShortPauseSec    int `yaml:"short_pause_sec"`
	LongPauseSec     int `yaml:"long_pause_sec"`
	PauseSliceSec    int `yaml:"pause_slice_sec"`
	JitterMinSec     int `yaml:"jitter_min_sec"`
	JitterMaxSec     int `yaml:"jitter_max_sec"`
	DiscoverySleepMS int `yaml:"discovery_sleep_ms"`
}

func defaultPipeline() PipelineConfig {
	return PipelineConfig{
		SearchLimit:      100,
		DiscoveryCap:     50,
		GCEvery:          10,
		BatchSize:        3,
		GroupSize:        3,
		MaxInFlight:      2,
		ShortPauseSec:    90,
		LongPauseSec:     180,
		PauseSliceSec:    15,
		JitterMinSec:     1,
		JitterMaxSec:     10,
		DiscoverySleepMS: 500,
	}
}

func (p PipelineConfig) ShortPause() time.Duration {
	return time.Duration(p.ShortPauseSec) * time.Second
}
func (p PipelineConfig) LongPause() time.Duration { return time.Duration(p.LongPauseSec) * time.Second }
func (p PipelineConfig) PauseSlice() time.Duration {
	return time.Duration(p.PauseSliceSec) * time.Second
}
func (p PipelineConfig) JitterMin() time.Duration { return time.Duration(p.JitterMinSec) * time.Second }
func (p PipelineConfig) JitterMax() time.Duration { return time.Duration(p.JitterMaxSec) * time.Second }
func (p PipelineConfig) DiscoverySleep() time.Duration {
	return time.Duration(p.DiscoverySleepMS) * time.Millisecond
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Apify: ApifyConfig{
			Token:        os.Getenv("APIFY_TOKEN"),
			HashtagActor: getEnv("APIFY_HASHTAG_ACTOR", "DrF9mzPPEuVizVF4l"),
			ProfileActor: getEnv("APIFY_PROFILE_ACTOR", "8WEn9FvZnhE7lM3oA"),
		},
		Perplexity: PerplexityConfig{
			APIKey: os.Getenv("PERPLEXITY_API_KEY"),
			Model:  getEnv("PERPLEXITY_MODEL", "llama-3.1-sonar-small-128k-online"),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("POSTGRES_URL"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("DISCOVERY_CRON"),
		},
		Pipeline:  defaultPipeline(),
		IGSession: os.Getenv("IG_SESSIONID"),
		ProxyURL:  os.Getenv("PROXY_URL"),
		DBPath:    getEnv("DB_PATH", "leadgen.db"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}

	if tags := os.Getenv("DISCOVERY_TAGS"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				cfg.Scheduler.Tags = append(cfg.Scheduler.Tags, t)
			}
		}
	}

	if err := cfg.loadPipelineYAML(getEnv("PIPELINE_CONFIG", "config/pipeline.yaml")); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the credentials the pipeline cannot run without. This is
// the only fatal error class; everything past this point degrades locally.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Apify.Token) == "" {
		missing = append(missing, "APIFY_TOKEN")
	}
	if strings.TrimSpace(c.Perplexity.APIKey) == "" {
		missing = append(missing, "PERPLEXITY_API_KEY")
	}
	if strings.TrimSpace(c.IGSession) == "" {
		missing = append(missing, "IG_SESSIONID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing or empty credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) loadPipelineYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, &c.Pipeline); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
