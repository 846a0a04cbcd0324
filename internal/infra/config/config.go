package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App           AppSettings          `mapstructure:"app"`
	Postgres      PostgresSettings     `mapstructure:"postgres"`
	Redis         RedisSettings        `mapstructure:"redis"`
	Kafka         KafkaSettings        `mapstructure:"kafka"`
	JWT           JWTSettings          `mapstructure:"jwt"`
	Cache         CacheSettings        `mapstructure:"cache"`
	Filters       FilterSettings       `mapstructure:"filters"`
	Telemetry     TelemetrySettings    `mapstructure:"telemetry"`
	RateLimit     RateLimitSettings    `mapstructure:"rate_limit"`
	Argon2        Argon2Settings       `mapstructure:"argon2"`
	Notifications NotificationSettings `mapstructure:"notifications"`
	Revocation    RevocationSettings   `mapstructure:"revocation"`
	Realms        []string             `mapstructure:"realms"`
}

type AppSettings struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// KafkaSettings configures the notification queue and revocation fan-out.
// An empty broker list switches both to in-process fallbacks.
type KafkaSettings struct {
	Brokers       []string `mapstructure:"brokers"`
	TopicPrefix   string   `mapstructure:"topic_prefix"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

// JWTSettings configures the HS256 signer and token lifetimes.
// A zero VerifyTTL issues verification links without expiry.
type JWTSettings struct {
	Secret     string        `mapstructure:"secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	OTPTTL     time.Duration `mapstructure:"otp_ttl"`
	ResetTTL   time.Duration `mapstructure:"reset_ttl"`
	VerifyTTL  time.Duration `mapstructure:"verify_ttl"`
}

type CacheSettings struct {
	EncryptionKey string        `mapstructure:"encryption_key"`
	UserTTL       time.Duration `mapstructure:"user_ttl"`
	RevocationTTL time.Duration `mapstructure:"revocation_ttl"`
}

// FilterSettings configures the membership filter bank and where its snapshots live.
type FilterSettings struct {
	SnapshotBackend          string       `mapstructure:"snapshot_backend"`
	SnapshotDir              string       `mapstructure:"snapshot_dir"`
	SnapshotKeyPrefix        string       `mapstructure:"snapshot_key_prefix"`
	CompromisedPasswordsSeed string       `mapstructure:"compromised_passwords_seed"`
	BlacklistedTokens        FilterSizing `mapstructure:"blacklisted_tokens"`
	CompromisedPasswords     FilterSizing `mapstructure:"compromised_passwords"`
	SuspiciousIPs            FilterSizing `mapstructure:"suspicious_ips"`
	RegisteredEmails         FilterSizing `mapstructure:"registered_emails"`
}

type FilterSizing struct {
	Capacity  uint    `mapstructure:"capacity"`
	ErrorRate float64 `mapstructure:"error_rate"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// RateLimitSettings configures the per-IP sliding window
type RateLimitSettings struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type NotificationSettings struct {
	Workers   int          `mapstructure:"workers"`
	QueueSize int          `mapstructure:"queue_size"`
	SMTP      SMTPSettings `mapstructure:"smtp"`
}

// SMTPSettings configures the worker's email sender. An empty host selects the logging sender.
type SMTPSettings struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	From             string        `mapstructure:"from"`
	BreakerFailures  uint32        `mapstructure:"breaker_failures"`
	BreakerOpenDelay time.Duration `mapstructure:"breaker_open_delay"`
}

type RevocationSettings struct {
	DegradationPolicy string `mapstructure:"degradation_policy"`
}

var (
	// ErrMissingSecret is returned when signing or encryption secrets are absent outside development.
	ErrMissingSecret = errors.New("config: secret not configured")
	// ErrInvalidRealm is returned when a realm name cannot serve as a route prefix and table name.
	ErrInvalidRealm = errors.New("config: invalid realm name")
)

var realmNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]{0,31}$`)

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AUTH")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.base_url",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"postgres.auto_migrate",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.consumer_group",
		"jwt.secret",
		"jwt.session_ttl",
		"jwt.otp_ttl",
		"jwt.reset_ttl",
		"jwt.verify_ttl",
		"cache.encryption_key",
		"cache.user_ttl",
		"cache.revocation_ttl",
		"filters.snapshot_backend",
		"filters.snapshot_dir",
		"filters.snapshot_key_prefix",
		"filters.compromised_passwords_seed",
		"filters.blacklisted_tokens.capacity",
		"filters.blacklisted_tokens.error_rate",
		"filters.compromised_passwords.capacity",
		"filters.compromised_passwords.error_rate",
		"filters.suspicious_ips.capacity",
		"filters.suspicious_ips.error_rate",
		"filters.registered_emails.capacity",
		"filters.registered_emails.error_rate",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window",
		"rate_limit.max_requests",
		"rate_limit.key_prefix",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"notifications.workers",
		"notifications.queue_size",
		"notifications.smtp.host",
		"notifications.smtp.port",
		"notifications.smtp.username",
		"notifications.smtp.password",
		"notifications.smtp.from",
		"notifications.smtp.breaker_failures",
		"notifications.smtp.breaker_open_delay",
		"revocation.degradation_policy",
		"realms",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *AppConfig) IsDevelopment() bool {
	return c.App.Env == "development"
}

func (c *AppConfig) validate() error {
	if err := validateRealms(c.Realms); err != nil {
		return err
	}
	if c.IsDevelopment() {
		return nil
	}
	if strings.TrimSpace(c.JWT.Secret) == "" || c.JWT.Secret == devJWTSecret {
		return fmt.Errorf("%w: jwt.secret", ErrMissingSecret)
	}
	if strings.TrimSpace(c.Cache.EncryptionKey) == "" || c.Cache.EncryptionKey == devEncryptionKey {
		return fmt.Errorf("%w: cache.encryption_key", ErrMissingSecret)
	}
	return nil
}

// validateRealms requires names that are unique ignoring case, since the
// lower-cased name becomes the table and cache namespace.
func validateRealms(realms []string) error {
	seen := make(map[string]struct{}, len(realms))
	for _, name := range realms {
		name = strings.TrimSpace(name)
		if !realmNamePattern.MatchString(name) {
			return fmt.Errorf("%w: %q", ErrInvalidRealm, name)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate %q", ErrInvalidRealm, name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

const (
	devJWTSecret     = "dev-only-signing-secret"
	devEncryptionKey = "dev-only-cache-encryption-key"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "realm-auth-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.base_url", "http://localhost:8080")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "auth")
	v.SetDefault("postgres.password", "auth_password")
	v.SetDefault("postgres.database", "auth")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "auth")
	v.SetDefault("kafka.consumer_group", "auth-notification-worker")

	v.SetDefault("jwt.secret", devJWTSecret)
	v.SetDefault("jwt.session_ttl", "24h")
	v.SetDefault("jwt.otp_ttl", "24h")
	v.SetDefault("jwt.reset_ttl", "1h")
	v.SetDefault("jwt.verify_ttl", "0s")

	v.SetDefault("cache.encryption_key", devEncryptionKey)
	v.SetDefault("cache.user_ttl", "3600s")
	v.SetDefault("cache.revocation_ttl", "24h")

	v.SetDefault("filters.snapshot_backend", "file")
	v.SetDefault("filters.snapshot_dir", "data/bloom")
	v.SetDefault("filters.snapshot_key_prefix", "auth:filters")
	v.SetDefault("filters.compromised_passwords_seed", "")
	v.SetDefault("filters.blacklisted_tokens.capacity", 100_000)
	v.SetDefault("filters.blacklisted_tokens.error_rate", 0.001)
	v.SetDefault("filters.compromised_passwords.capacity", 1_000_000)
	v.SetDefault("filters.compromised_passwords.error_rate", 0.001)
	v.SetDefault("filters.suspicious_ips.capacity", 50_000)
	v.SetDefault("filters.suspicious_ips.error_rate", 0.001)
	v.SetDefault("filters.registered_emails.capacity", 500_000)
	v.SetDefault("filters.registered_emails.error_rate", 0.001)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "realm-auth-service")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window", "3600s")
	v.SetDefault("rate_limit.max_requests", 100)
	v.SetDefault("rate_limit.key_prefix", "auth:rate_limit")

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("notifications.workers", 4)
	v.SetDefault("notifications.queue_size", 256)
	v.SetDefault("notifications.smtp.host", "")
	v.SetDefault("notifications.smtp.port", 587)
	v.SetDefault("notifications.smtp.username", "")
	v.SetDefault("notifications.smtp.password", "")
	v.SetDefault("notifications.smtp.from", "no-reply@localhost")
	v.SetDefault("notifications.smtp.breaker_failures", 5)
	v.SetDefault("notifications.smtp.breaker_open_delay", "30s")

	v.SetDefault("revocation.degradation_policy", "lenient")

	v.SetDefault("realms", []string{"User1", "User2"})
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "AUTH_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
