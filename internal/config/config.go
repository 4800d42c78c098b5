// Package config loads application configuration from defaults, an optional
// YAML file and APP_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "APP_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	JWT           JWTConfig           `koanf:"jwt"`
	CORS          CORSConfig          `koanf:"cors"`
	Redis         RedisConfig         `koanf:"redis"`
	RateLimit     RateLimitConfig     `koanf:"rate_limit"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Jobs          JobsConfig          `koanf:"jobs"`
	Bootstrap     BootstrapConfig     `koanf:"bootstrap"`
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
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	// TrustedProxies are CIDRs or addresses allowed to set X-Forwarded-For
	// and X-Real-IP. Empty means the socket peer is the client.
	TrustedProxies    []string      `koanf:"trusted_proxies"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig configures access tokens.
type JWTConfig struct {
	// PrivateKeyPath points to a PEM RSA key. A key is generated when empty.
	PrivateKeyPath      string        `koanf:"private_key_path"`
	Issuer              string        `koanf:"issuer"`
	AccessTokenDuration time.Duration `koanf:"access_token_duration"`
	KeyBits             int           `koanf:"key_bits"`
}

// CORSConfig configures allowed origins.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// RedisConfig configures the cache. An empty URL disables caching.
type RedisConfig struct {
	URL      string        `koanf:"url"`
	StatsTTL time.Duration `koanf:"stats_ttl"`
}

// RateLimitConfig configures the per-IP login limiter.
type RateLimitConfig struct {
	Enabled    bool    `koanf:"enabled"`
	LoginRPS   float64 `koanf:"login_rps"`
	LoginBurst int     `koanf:"login_burst"`
}

// NotificationsConfig configures the notification queue.
type NotificationsConfig struct {
	Enabled    bool             `koanf:"enabled"`
	BaseURL    string           `koanf:"base_url"`
	Email      EmailConfig      `koanf:"email"`
	Mattermost MattermostConfig `koanf:"mattermost"`
	Worker     WorkerConfig     `koanf:"worker"`
	Retry      RetryConfig      `koanf:"retry"`
}

// EmailConfig configures SMTP delivery.
type EmailConfig struct {
	Enabled            bool   `koanf:"enabled"`
	SMTPHost           string `koanf:"smtp_host"`
	SMTPPort           int    `koanf:"smtp_port"`
	SMTPUser           string `koanf:"smtp_user"`
	SMTPPassword       string `koanf:"smtp_password"`
	FromAddress        string `koanf:"from_address"`
	InsecureSkipVerify bool   `koanf:"insecure_skip_verify"`
}

// MattermostConfig configures webhook delivery. An empty WebhookURL disables it.
type MattermostConfig struct {
	WebhookURL string        `koanf:"webhook_url"`
	Username   string        `koanf:"username"`
	IconURL    string        `koanf:"icon_url"`
	Channel    string        `koanf:"channel"`
	Timeout    time.Duration `koanf:"timeout"`
}

// WorkerConfig configures queue polling.
type WorkerConfig struct {
	BatchSize    int           `koanf:"batch_size"`
	PollInterval time.Duration `koanf:"poll_interval"`
	NumWorkers   int           `koanf:"num_workers"`
}

// RetryConfig configures delivery retries.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// JobsConfig configures scheduled jobs.
type JobsConfig struct {
	Enabled         bool          `koanf:"enabled"`
	CleanupSchedule string        `koanf:"cleanup_schedule"`
	Retention       time.Duration `koanf:"retention"`
	Timezone        string        `koanf:"timezone"`
}

// BootstrapConfig configures seeding on startup.
type BootstrapConfig struct {
	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password"`
	DemoData      bool   `koanf:"demo_data"`
	DemoPassword  string `koanf:"demo_password"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			RequestTimeout:    60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			MigrateOnStart:  true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			Issuer:              "incident-tracker",
			AccessTokenDuration: 300 * time.Second,
			KeyBits:             2048,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:4200"},
		},
		Redis: RedisConfig{
			StatsTTL: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:    true,
			LoginRPS:   1,
			LoginBurst: 5,
		},
		Notifications: NotificationsConfig{
			Email: EmailConfig{
				SMTPPort:    587,
				FromAddress: "Incident Tracker <noreply@localhost>",
			},
			Mattermost: MattermostConfig{
				Timeout: 10 * time.Second,
			},
			Worker: WorkerConfig{
				BatchSize:    100,
				PollInterval: 5 * time.Second,
				NumWorkers:   2,
			},
			Retry: RetryConfig{
				MaxAttempts:       3,
				InitialBackoff:    time.Second,
				MaxBackoff:        5 * time.Minute,
				BackoffMultiplier: 2,
			},
		},
		Jobs: JobsConfig{
			Enabled:         true,
			CleanupSchedule: "0 3 * * *",
			Retention:       7 * 24 * time.Hour,
			Timezone:        "UTC",
		},
		Bootstrap: BootstrapConfig{
			AdminUsername: "admin",
			AdminPassword: "123",
			DemoPassword:  "123",
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKeyMapper()), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PathFromEnv returns CONFIG_PATH when set.
func PathFromEnv() string {
	return os.Getenv("CONFIG_PATH")
}

// envKeyMapper maps APP_DATABASE_MAX_OPEN_CONNS to database.max_open_conns.
// Underscores are ambiguous, so names are resolved against the known keys.
// Unknown variables are ignored.
func envKeyMapper() func(string) string {
	known := make(map[string]string)
	collectKeys(reflect.TypeOf(Config{}), "", known)

	return func(name string) string {
		flat := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		return known[flat]
	}
}

func collectKeys(t reflect.Type, prefix string, out map[string]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("koanf")
		if tag == "" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			collectKeys(f.Type, key, out)
			continue
		}
		out[strings.ReplaceAll(key, ".", "_")] = key
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func validNetwork(s string) bool {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Database.MaxOpenConns <= 0 {
		errs = append(errs, errors.New("database.max_open_conns must be positive"))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}
	if c.Server.MetricsPort != "" && c.Server.MetricsPort == c.Server.Port && c.Server.Port != "0" {
		errs = append(errs, errors.New("server.metrics_port must differ from server.port"))
	}
	for _, proxy := range c.Server.TrustedProxies {
		if !validNetwork(proxy) {
			errs = append(errs, fmt.Errorf("server.trusted_proxies: %q is not an address or CIDR", proxy))
		}
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("log.level %q is invalid", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format %q is invalid, use json or text", c.Log.Format))
	}
	if c.JWT.AccessTokenDuration <= 0 {
		errs = append(errs, errors.New("jwt.access_token_duration must be positive"))
	}
	if c.JWT.PrivateKeyPath == "" && c.JWT.KeyBits < 2048 {
		errs = append(errs, errors.New("jwt.key_bits must be at least 2048"))
	}
	if c.Redis.URL != "" && c.Redis.StatsTTL <= 0 {
		errs = append(errs, errors.New("redis.stats_ttl must be positive when redis.url is set"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.LoginRPS <= 0 || c.RateLimit.LoginBurst <= 0) {
		errs = append(errs, errors.New("rate_limit.login_rps and rate_limit.login_burst must be positive"))
	}
	errs = append(errs, c.Notifications.validate()...)
	if c.Jobs.Enabled {
		if c.Jobs.CleanupSchedule == "" {
			errs = append(errs, errors.New("jobs.cleanup_schedule is required when jobs are enabled"))
		}
		if c.Jobs.Retention <= 0 {
			errs = append(errs, errors.New("jobs.retention must be positive"))
		}
	}
	if c.Bootstrap.AdminUsername != "" && c.Bootstrap.AdminPassword == "" {
		errs = append(errs, errors.New("bootstrap.admin_password is required when bootstrap.admin_username is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (n *NotificationsConfig) validate() []error {
	if !n.Enabled {
		return nil
	}
	var errs []error
	if n.Email.Enabled {
		if n.Email.SMTPHost == "" {
			errs = append(errs, errors.New("notifications.email.smtp_host is required when email is enabled"))
		}
		if n.Email.FromAddress == "" {
			errs = append(errs, errors.New("notifications.email.from_address is required when email is enabled"))
		}
	}
	if n.Worker.BatchSize <= 0 || n.Worker.NumWorkers <= 0 || n.Worker.PollInterval <= 0 {
		errs = append(errs, errors.New("notifications.worker batch_size, num_workers and poll_interval must be positive"))
	}
	if n.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("notifications.retry.max_attempts must be positive"))
	}
	if n.Retry.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("notifications.retry.backoff_multiplier must be at least 1"))
	}
	return errs
}
