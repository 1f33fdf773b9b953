// Package config loads application configuration from a YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/pizzeria/internal/orders"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables that override file values.
// Nested keys are separated by a double underscore: PIZZERIA_SERVER__READ_TIMEOUT.
const EnvPrefix = "PIZZERIA_"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Mongo    MongoConfig    `koanf:"mongo"`
	Log      LogConfig      `koanf:"log"`
	JWT      JWTConfig      `koanf:"jwt"`
	CORS     CORSConfig     `koanf:"cors"`
	Orders   OrdersConfig   `koanf:"orders"`
	Seed     SeedConfig     `koanf:"seed"`
}

// ServerConfig configures the HTTP servers.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	// LoginRateLimit is the sustained number of login attempts per second; 0 disables throttling.
	LoginRateLimit float64 `koanf:"login_rate_limit"`
	LoginBurst     int     `koanf:"login_burst"`
}

// DatabaseConfig configures the PostgreSQL user directory.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// MongoConfig configures the MongoDB order store.
type MongoConfig struct {
	URI             string        `koanf:"uri"`
	Database        string        `koanf:"database"`
	Collection      string        `koanf:"collection"`
	MaxPoolSize     uint64        `koanf:"max_pool_size"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig configures token issuing.
// ExpirationInMinutes is kept as a string: an unset or unparseable value falls back to the default.
type JWTConfig struct {
	SecretKey           string `koanf:"secret_key"`
	Issuer              string `koanf:"issuer"`
	Audience            string `koanf:"audience"`
	ExpirationInMinutes string `koanf:"expiration_in_minutes"`
}

// CORSConfig configures allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// OrdersConfig configures order workflow policies.
type OrdersConfig struct {
	DeleteManyPolicy string `koanf:"delete_many_policy"`
}

// SeedConfig describes the administrator account created by `pizzeria seed`.
type SeedConfig struct {
	AdminName     string `koanf:"admin_name"`
	AdminEmail    string `koanf:"admin_email"`
	AdminPassword string `koanf:"admin_password"`
	AdminPhone    string `koanf:"admin_phone"`
	AdminAddress  string `koanf:"admin_address"`
}

// Default returns configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			LoginRateLimit:    5,
			LoginBurst:        10,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Mongo: MongoConfig{
			Database:        "pizzeria",
			Collection:      "orders",
			MaxPoolSize:     50,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			Issuer:   "pizzeria",
			Audience: "pizzeria",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{},
		},
		Orders: OrdersConfig{
			DeleteManyPolicy: orders.DeletePolicyStrict,
		},
		Seed: SeedConfig{
			AdminName:    "Admin",
			AdminEmail:   "admin@test.com",
			AdminPhone:   "1234567891",
			AdminAddress: "Street Test # Test - Test",
		},
	}
}

// Load reads configuration from path (optional, may be empty) and then applies
// PIZZERIA_* environment overrides on top of the defaults. The result is not
// validated; each command checks the settings it needs.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// envKey maps PIZZERIA_SERVER__READ_TIMEOUT to server.read_timeout.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate checks everything the API server needs.
func (c *Config) Validate() error {
	errs := []error{c.ValidateDatabase()}

	if c.Mongo.URI == "" {
		errs = append(errs, errors.New("mongo.uri is required"))
	}
	if c.Mongo.Database == "" {
		errs = append(errs, errors.New("mongo.database is required"))
	}
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}

	if !orders.ValidDeletePolicy(c.Orders.DeleteManyPolicy) {
		errs = append(errs, fmt.Errorf("orders.delete_many_policy must be %q or %q, got %q",
			orders.DeletePolicyStrict, orders.DeletePolicyPartial, c.Orders.DeleteManyPolicy))
	}

	return errors.Join(errs...)
}

// ValidateDatabase checks the settings needed to reach the user directory,
// which is all that migrate and seed use.
func (c *Config) ValidateDatabase() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	return nil
}
