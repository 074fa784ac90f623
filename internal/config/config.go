// Package config loads server configuration from an optional YAML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

const (
	TokenFormatOpaque = "opaque"
	TokenFormatJWT    = "jwt"
)

type Config struct {
	ListenAddr string    `yaml:"listen_addr"`
	BasePath   string    `yaml:"base_path"`
	TrustProxy bool      `yaml:"trust_proxy"`
	TLS        TLSConfig `yaml:"tls"`

	Database     DatabaseConfig `yaml:"database"`
	StoreTimeout time.Duration  `yaml:"store_timeout"`

	CodeTTL       time.Duration `yaml:"code_ttl"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
	Session       SessionConfig `yaml:"session"`
	Token         TokenConfig   `yaml:"token"`

	ResponseTypes    []string `yaml:"response_types"`
	ChallengeMethods []string `yaml:"challenge_methods"`
	GrantTypes       []string `yaml:"grant_types"`

	TemplatesDir string `yaml:"templates_dir"`
	ClientsDir   string `yaml:"clients_dir"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Seed installs the development client and account on startup.
	Seed bool `yaml:"seed"`
}

type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
	MySQL           MySQLConfig   `yaml:"mysql"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	PingTimeout     time.Duration `yaml:"ping_timeout"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type SessionConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	CookieName   string        `yaml:"cookie_name"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

// TokenConfig selects how access tokens are minted. A jwt without a
// signing key file gets a key generated at startup.
type TokenConfig struct {
	Format         string        `yaml:"format"`
	Issuer         string        `yaml:"issuer"`
	SigningKeyFile string        `yaml:"signing_key_file"`
	Lifetime       time.Duration `yaml:"lifetime"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

func Default() *Config {
	return &Config{
		ListenAddr: ":3000",
		BasePath:   "/oauth/v2",
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "codeflow.db",
			MySQL: MySQLConfig{
				Host: "127.0.0.1",
				Port: 3306,
				User: "codeflow",
				Name: "codeflow",
			},
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 15 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		StoreTimeout:  5 * time.Second,
		CodeTTL:       10 * time.Minute,
		PurgeInterval: time.Minute,
		Session: SessionConfig{
			TTL:          24 * time.Hour,
			CookieName:   "codeflow_session",
			SecureCookie: true,
		},
		Token: TokenConfig{
			Format:   TokenFormatOpaque,
			Lifetime: time.Hour,
		},
		ResponseTypes:    []string{"code"},
		ChallengeMethods: []string{"S256"},
		GrantTypes:       []string{"authorization_code"},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "codeflow",
		},
	}
}

// Load starts from Default, applies the YAML file at path (when path is not
// empty), then applies environment overrides read through env.
func Load(
	path string,
	env EnvReader,
) (
	*Config,
	error,
) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
		}
	}

	if env != nil {
		if err := applyEnv(cfg, env); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case DriverMySQL:
		if c.Database.MySQL.Host == "" || c.Database.MySQL.Name == "" {
			errs = append(errs, errors.New("database.mysql host and name are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver '%s'", c.Database.Driver))
	}

	if len(c.ResponseTypes) == 0 {
		errs = append(errs, errors.New("response_types must not be empty"))
	}
	if len(c.GrantTypes) == 0 {
		errs = append(errs, errors.New("grant_types must not be empty"))
	}
	if len(c.ChallengeMethods) == 0 {
		errs = append(errs, errors.New("challenge_methods must not be empty"))
	}
	for _, m := range c.ChallengeMethods {
		if m != "plain" && m != "S256" {
			errs = append(errs, fmt.Errorf("unsupported challenge method '%s'", m))
		}
	}

	durations := map[string]time.Duration{
		"store_timeout":  c.StoreTimeout,
		"code_ttl":       c.CodeTTL,
		"purge_interval": c.PurgeInterval,
		"session.ttl":    c.Session.TTL,
		"token.lifetime": c.Token.Lifetime,
	}
	for name, d := range durations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	switch c.Token.Format {
	case TokenFormatOpaque:
	case TokenFormatJWT:
		if c.Token.Issuer == "" {
			errs = append(errs, errors.New("token.issuer is required for jwt tokens"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown token format '%s'", c.Token.Format))
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls.cert_file and tls.key_file must be set together"))
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate_limit rps and burst must be positive"))
	}

	return errors.Join(errs...)
}

func applyEnv(cfg *Config, env EnvReader) error {
	if v := env.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid PORT '%s': %w", v, err)
		}
		cfg.ListenAddr = ":" + v
	}

	if v := env.Getenv("TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TRUST_PROXY '%s': %w", v, err)
		}
		cfg.TrustProxy = b
	}

	if v := env.Getenv("SEED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SEED '%s': %w", v, err)
		}
		cfg.Seed = b
	}

	if v := env.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DB_PORT '%s': %w", v, err)
		}
		cfg.Database.MySQL.Port = port
	}

	overrides := map[string]*string{
		"DB_DRIVER":     &cfg.Database.Driver,
		"DB_PATH":       &cfg.Database.Path,
		"DB_HOST":       &cfg.Database.MySQL.Host,
		"DB_USER":       &cfg.Database.MySQL.User,
		"DB_PASSWORD":   &cfg.Database.MySQL.Password,
		"DB_NAME":       &cfg.Database.MySQL.Name,
		"TLS_CERT_FILE": &cfg.TLS.CertFile,
		"TLS_KEY_FILE":  &cfg.TLS.KeyFile,
		"TEMPLATES_DIR": &cfg.TemplatesDir,
		"CLIENTS_DIR":   &cfg.ClientsDir,
		"LOG_LEVEL":     &cfg.Log.Level,
		"LOG_FORMAT":    &cfg.Log.Format,

		"TOKEN_FORMAT":           &cfg.Token.Format,
		"TOKEN_ISSUER":           &cfg.Token.Issuer,
		"TOKEN_SIGNING_KEY_FILE": &cfg.Token.SigningKeyFile,
	}
	for key, dst := range overrides {
		if v := env.Getenv(key); v != "" {
			*dst = v
		}
	}

	return nil
}
