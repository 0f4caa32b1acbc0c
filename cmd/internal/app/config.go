package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config contains the runtime configuration of the server process.
// Values come from an optional YAML file at LABA_CONFIG_PATH, overridden by environment variables.
type Config struct {
	HTTPAddr  string `yaml:"http_addr" env:"LABA_HTTP_ADDR" env-default:"0.0.0.0:8080"`
	LogLevel  string `yaml:"log_level" env:"LABA_LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LABA_LOG_FORMAT" env-default:"json"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"LABA_HTTP_READ_HEADER_TIMEOUT" env-default:"5s"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"LABA_HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"LABA_HTTP_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"LABA_HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"LABA_HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes" env:"LABA_HTTP_MAX_HEADER_BYTES" env-default:"1048576"`

	DatabaseURL string `yaml:"database_url" env:"LABA_DATABASE_URL"`
	DBMaxConns  int32  `yaml:"db_max_conns" env:"LABA_DB_MAX_CONNS" env-default:"10"`
	DBMinConns  int32  `yaml:"db_min_conns" env:"LABA_DB_MIN_CONNS" env-default:"0"`
	// DBMigrate applies embedded goose migrations at startup.
	DBMigrate bool `yaml:"db_migrate" env:"LABA_DB_MIGRATE" env-default:"false"`

	RedisURL string `yaml:"redis_url" env:"LABA_REDIS_URL"`

	// If true, /readyz returns 503 unless Postgres is configured and reachable.
	ReadinessRequireDB bool `yaml:"readiness_require_db" env:"LABA_READINESS_REQUIRE_DB" env-default:"false"`

	MetricsEnabled bool `yaml:"metrics_enabled" env:"LABA_METRICS_ENABLED" env-default:"true"`

	// If true, LABA_TOKEN_HMAC_KEY must be set (>= 32 bytes) so refresh-token hashes are keyed.
	RequireTokenHMAC bool `yaml:"require_token_hmac" env:"LABA_REQUIRE_TOKEN_HMAC" env-default:"false"`
}

// LoadConfig reads Config from LABA_CONFIG_PATH (if set) and the environment.
func LoadConfig() (Config, error) {
	var cfg Config

	path := strings.TrimSpace(os.Getenv("LABA_CONFIG_PATH"))
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("app: config file: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("app: read config: %w", err)
		}
		return cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("app: read env: %w", err)
	}
	return cfg, nil
}
