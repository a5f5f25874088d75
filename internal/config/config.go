// Package config loads the orchestrator's static and per-invocation
// configuration from a YAML file layered with environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lei/hybrid-capture/internal/models"
)

// Config is the static shape of the orchestrator process: store endpoint,
// server, logging and rate-limit thresholds.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Forge     ForgeConfig     `yaml:"forge"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// DispatchConfig names the GitHub repository and workflow the batch
// back-end dispatches historical-sync jobs to, and the credentials used to
// trigger it. A zero value disables the batch back-end: jobs that would
// classify batch fail with ErrBackendUnavailable instead.
type DispatchConfig struct {
	Owner          string `yaml:"owner"`
	Repo           string `yaml:"repo"`
	WorkflowFile   string `yaml:"workflow_file"`
	Ref            string `yaml:"ref"`
	InstallationID string `yaml:"installation_id"`
	AppJWT         string `yaml:"app_jwt"`
	Token          string `yaml:"token"`
}

// ServerConfig contains HTTP server settings for the health/metrics surface.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StoreConfig contains relational-store connection settings. URL is the
// Supabase project URL (SUPABASE_URL), not a raw Postgres DSN: DSN()
// derives the direct Postgres connection string Supabase exposes at the
// same project reference under the db. subdomain.
type StoreConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
	AnonKey    string `yaml:"anon_key"`
}

// DSN derives the Postgres connection string GORM dials from the
// Supabase project URL and whichever credential is configured, preferring
// the service key (full read/write) over the anon key.
func (s StoreConfig) DSN() (string, error) {
	key := s.ServiceKey
	if key == "" {
		key = s.AnonKey
	}
	if key == "" {
		return "", fmt.Errorf("config: no store credential configured")
	}

	u, err := url.Parse(s.URL)
	if err != nil {
		return "", fmt.Errorf("config: invalid store url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("config: store url has no host")
	}

	return fmt.Sprintf("postgres://postgres:%s@db.%s:5432/postgres?sslmode=require",
		url.QueryEscape(key), host), nil
}

// ForgeConfig contains forge authentication and path-selection settings.
type ForgeConfig struct {
	Token           string `yaml:"token"`
	UseCompound     bool   `yaml:"use_compound"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// RateLimitConfig seeds the Governor's thresholds.
type RateLimitConfig struct {
	Warning    int     `yaml:"warning"`
	Critical   int     `yaml:"critical"`
	Efficiency float64 `yaml:"efficiency"`
}

// Load reads the YAML file at path (if it exists), then overlays recognised
// environment variables. Missing store credentials fail fast with a
// descriptive error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Store.URL == "" {
		return nil, fmt.Errorf("config: SUPABASE_URL (or store.url) is required")
	}
	if cfg.Store.ServiceKey == "" && cfg.Store.AnonKey == "" {
		return nil, fmt.Errorf("config: SUPABASE_SERVICE_KEY or SUPABASE_ANON_KEY is required")
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Forge: ForgeConfig{
			UseCompound: true,
		},
		Dispatch: DispatchConfig{
			WorkflowFile: "historical-sync.yml",
			Ref:          "main",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Warning:    1000,
			Critical:   100,
			Efficiency: 5,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Store.URL = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_KEY"); v != "" {
		cfg.Store.ServiceKey = v
	}
	if v := os.Getenv("SUPABASE_ANON_KEY"); v != "" {
		cfg.Store.AnonKey = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.Forge.Token = v
	}
	if v := os.Getenv("USE_COMPOUND_QUERIES"); v != "" {
		cfg.Forge.UseCompound = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DISPATCH_OWNER"); v != "" {
		cfg.Dispatch.Owner = v
	}
	if v := os.Getenv("DISPATCH_REPO"); v != "" {
		cfg.Dispatch.Repo = v
	}
	if v := os.Getenv("DISPATCH_TOKEN"); v != "" {
		cfg.Dispatch.Token = v
	}
}

// InvocationParams are the per-invocation capture parameters
// (REPOSITORY_ID, PR_NUMBERS, …), used by cmd/capture-worker to build a
// models.JobData from the environment.
type InvocationParams struct {
	RepositoryID   uint64
	RepositoryName string
	PRNumbers      []int
	TimeRangeDays  int
	MaxItems       int
	JobID          string
	JobKind        models.JobKind
	DaysBack       int
	TriggerSource  models.TriggerSource
}

// LoadInvocationParams reads REPOSITORY_ID, REPOSITORY_NAME, PR_NUMBERS,
// TIME_RANGE, MAX_ITEMS, JOB_ID, JOB_KIND and DAYS_BACK from the
// environment. JOB_ID and JOB_KIND are required: cmd/capture-worker needs
// both to load the Job row the Router already created and pick the
// matching Capture Worker variant.
func LoadInvocationParams() (InvocationParams, error) {
	var p InvocationParams

	repoIDStr := os.Getenv("REPOSITORY_ID")
	if repoIDStr == "" {
		return p, fmt.Errorf("config: REPOSITORY_ID is required")
	}
	repoID, err := strconv.ParseUint(repoIDStr, 10, 64)
	if err != nil {
		return p, fmt.Errorf("config: invalid REPOSITORY_ID: %w", err)
	}
	p.RepositoryID = repoID
	p.RepositoryName = os.Getenv("REPOSITORY_NAME")

	p.JobID = os.Getenv("JOB_ID")
	if p.JobID == "" {
		return p, fmt.Errorf("config: JOB_ID is required")
	}
	jobKind := os.Getenv("JOB_KIND")
	if jobKind == "" {
		return p, fmt.Errorf("config: JOB_KIND is required")
	}
	p.JobKind = models.JobKind(jobKind)

	if raw := os.Getenv("PR_NUMBERS"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				return p, fmt.Errorf("config: invalid PR_NUMBERS entry %q: %w", part, err)
			}
			p.PRNumbers = append(p.PRNumbers, n)
		}
	}

	if raw := os.Getenv("TIME_RANGE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("config: invalid TIME_RANGE: %w", err)
		}
		p.TimeRangeDays = n
	}

	if raw := os.Getenv("MAX_ITEMS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("config: invalid MAX_ITEMS: %w", err)
		}
		p.MaxItems = n
	}

	if raw := os.Getenv("DAYS_BACK"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("config: invalid DAYS_BACK: %w", err)
		}
		p.DaysBack = n
	}

	p.TriggerSource = models.TriggerScheduled
	if strings.EqualFold(os.Getenv("TRIGGER_SOURCE"), "manual") {
		p.TriggerSource = models.TriggerManual
	}

	return p, nil
}
