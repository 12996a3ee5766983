/*
Package config loads runtime settings for the CLI and the development server.

SOURCES (later wins):
  1. defaults below
  2. pacing.yaml in ., ./config or the path passed to Load
  3. .env (loaded into the process environment, never overriding it)
  4. PACING_* environment variables, e.g. PACING_API_GOALBASEURL

SEE ALSO:
  - logger/logger.go: builds the zap logger from Logging and App
  - client/client.go: consumes API
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/warp/yield-pacing/client"
	"github.com/warp/yield-pacing/dashboard"
)

const EnvPrefix = "PACING"

type Config struct {
	App       AppConfig
	Logging   LoggingConfig
	API       APIConfig
	Session   SessionConfig
	Server    ServerConfig
	Dashboard DashboardConfig
}

type AppConfig struct {
	Name        string
	Environment string
}

type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// APIConfig overrides the backend bases.
type APIConfig struct {
	GoalBaseURL string
	KPIBaseURL  string
	Timeout     int // seconds
}

type SessionConfig struct {
	Path string
}

type ServerConfig struct {
	Port               int
	DBPath             string
	ReadTimeout        int
	WriteTimeout       int
	JWTSecret          string
	RateLimitPerMinute int
	AllowedOrigins     []string
}

type DashboardConfig struct {
	RefreshCron     string
	PreferencesPath string
}

// TimeoutDuration returns the HTTP client timeout.
func (a *APIConfig) TimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// ClientConfig converts the section for client.New.
func (a *APIConfig) ClientConfig() client.Config {
	return client.Config{
		GoalBaseURL: a.GoalBaseURL,
		KPIBaseURL:  a.KPIBaseURL,
		Timeout:     a.TimeoutDuration(),
	}
}

func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// Addr is the listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// Load reads configuration. An empty path searches for pacing.yaml; a
// missing search result is not an error, a missing explicit path is.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pacing")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// env values arrive comma-separated, possibly with spaces
	cfg.Server.AllowedOrigins = splitList(strings.Join(cfg.Server.AllowedOrigins, ","))
	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "yield-pacing")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("api.goalBaseURL", client.DefaultGoalBaseURL)
	v.SetDefault("api.kpiBaseURL", client.DefaultKPIBaseURL)
	v.SetDefault("api.timeout", int(client.DefaultTimeout/time.Second))

	v.SetDefault("session.path", ".pacing/session.json")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.dbPath", "pacing.db")
	v.SetDefault("server.readTimeout", 15)
	v.SetDefault("server.writeTimeout", 15)
	v.SetDefault("server.jwtSecret", "")
	v.SetDefault("server.rateLimitPerMinute", 600)
	v.SetDefault("server.allowedOrigins", []string{"*"})

	v.SetDefault("dashboard.refreshCron", dashboard.DefaultRefreshSpec)
	v.SetDefault("dashboard.preferencesPath", ".pacing/preferences.json")
}
