package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Hermes      HermesConfig      `yaml:"hermes"`
	Redis       RedisConfig       `yaml:"redis"`
	Profiles    ProfilesConfig    `yaml:"profiles"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Fees        FeesConfig        `yaml:"fees"`
	Lifecycle   LifecycleConfig   `yaml:"lifecycle"`
	Invitations InvitationsConfig `yaml:"invitations"`
	Search      SearchConfig      `yaml:"search"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	AdminToken  string `yaml:"admin_token"`
}

// DatabaseConfig selects the job/proposal store. An empty URL runs the
// in-memory store.
type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type HermesConfig struct {
	URL string `yaml:"url"`
	// QueueGroup shares profile notices between replicas. Set it only when
	// the match cache is shared through Redis.
	QueueGroup   string `yaml:"queue_group"`
	StreamMaxAge string `yaml:"stream_max_age"`
}

// RedisConfig backs the match cache. An empty Addr keeps matches in process.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	MatchTTL int    `yaml:"match_ttl_seconds"`
}

type ProfilesConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type ScoringConfig struct {
	Weights         ScoringWeights `yaml:"weights"`
	PreferredCredit float64        `yaml:"preferred_credit"`
	RateBand        float64        `yaml:"rate_band"`
	ReasonThreshold float64        `yaml:"reason_threshold"`
}

type ScoringWeights struct {
	Skill      float64 `yaml:"skill"`
	Experience float64 `yaml:"experience"`
	Similarity float64 `yaml:"similarity"`
}

// FeeBracket is one marginal tier. UpTo of 0 marks the unbounded last tier.
type FeeBracket struct {
	UpTo float64 `yaml:"up_to"`
	Rate float64 `yaml:"rate"`
}

type FeesConfig struct {
	Version  string       `yaml:"version"`
	Brackets []FeeBracket `yaml:"brackets"`
}

type LifecycleConfig struct {
	MinTitleLength       int `yaml:"min_title_length"`
	MinDescriptionLength int `yaml:"min_description_length"`
	MinCoverLetterLength int `yaml:"min_cover_letter_length"`
	MaxCoverLetterLength int `yaml:"max_cover_letter_length"`
}

type InvitationsConfig struct {
	DefaultTTLHours int `yaml:"default_ttl_hours"`
	SweepIntervalMs int `yaml:"sweep_interval_ms"`
}

type SearchConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) MatchTTL() time.Duration {
	return time.Duration(c.Redis.MatchTTL) * time.Second
}

func (c *Config) InvitationTTL() time.Duration {
	return time.Duration(c.Invitations.DefaultTTLHours) * time.Hour
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Invitations.SweepIntervalMs) * time.Millisecond
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8700,
			MetricsPort: 8701,
		},
		Hermes: HermesConfig{
			URL:          "nats://localhost:4222",
			StreamMaxAge: "720h",
		},
		Redis: RedisConfig{
			MatchTTL: 3600,
		},
		Profiles: ProfilesConfig{
			URL: "http://localhost:8710",
		},
		Scoring: ScoringConfig{
			Weights: ScoringWeights{
				Skill:      0.5,
				Experience: 0.3,
				Similarity: 0.2,
			},
			PreferredCredit: 0.5,
			RateBand:        0.15,
			ReasonThreshold: 0.7,
		},
		Fees: FeesConfig{
			Version: "2024-tiered-v1",
			Brackets: []FeeBracket{
				{UpTo: 500, Rate: 0.20},
				{UpTo: 10000, Rate: 0.10},
				{Rate: 0.05},
			},
		},
		Lifecycle: LifecycleConfig{
			MinTitleLength:       10,
			MinDescriptionLength: 50,
			MinCoverLetterLength: 100,
			MaxCoverLetterLength: 5000,
		},
		Invitations: InvitationsConfig{
			DefaultTTLHours: 168,
			SweepIntervalMs: 60000,
		},
		Search: SearchConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(path string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

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

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BAZAAR_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("BAZAAR_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("BAZAAR_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("BAZAAR_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("BAZAAR_DATABASE_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Database.Migrate = b
		}
	}
	if v := os.Getenv("BAZAAR_HERMES_URL"); v != "" {
		cfg.Hermes.URL = v
	}
	if v := os.Getenv("BAZAAR_HERMES_QUEUE_GROUP"); v != "" {
		cfg.Hermes.QueueGroup = v
	}
	if v := os.Getenv("BAZAAR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("BAZAAR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BAZAAR_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("BAZAAR_PROFILES_URL"); v != "" {
		cfg.Profiles.URL = v
	}
	if v := os.Getenv("BAZAAR_PROFILES_TOKEN"); v != "" {
		cfg.Profiles.Token = v
	}
	if v := os.Getenv("BAZAAR_FEE_SCHEDULE_VERSION"); v != "" {
		cfg.Fees.Version = v
	}
	if v := os.Getenv("BAZAAR_INVITATION_SWEEP_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Invitations.SweepIntervalMs = n
		}
	}
	if v := os.Getenv("BAZAAR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BAZAAR_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
