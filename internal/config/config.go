package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Internal     InternalConfig
	Verification VerificationConfig
	Email        EmailConfig
	SMS          SMSConfig
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
	Log          LogConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port           string
	Mode           string // debug | release | test
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// RedisConfig содержит настройки подключения к Redis.
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	Mode       string   `mapstructure:"mode"`
	Addrs      []string `mapstructure:"addrs"`
	Addr       string   `mapstructure:"addr"`
	Password   string   `mapstructure:"password"`
	DB         int      `mapstructure:"db"`
	MasterName string   `mapstructure:"master_name"`

	// MaxRetries: -1 - бесконечно, 0 - без ретраев
	MaxRetries int `mapstructure:"max_retries"`
	// Интервалы между попытками в миллисекундах
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// Enabled reports whether any Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return len(r.Addrs) > 0 || r.Addr != ""
}

// JWTConfig holds the shared secret used to verify access tokens minted by the host.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// InternalConfig protects the host-to-subsystem routes.
type InternalConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// VerificationConfig содержит параметры одноразовых кодов и блокировки повторной отправки
type VerificationConfig struct {
	CodeTTL         time.Duration `mapstructure:"code_ttl"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	Lockout         time.Duration `mapstructure:"lockout"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	CodePepper      string        `mapstructure:"code_pepper"`
	// AttemptStore: postgres | redis
	AttemptStore string `mapstructure:"attempt_store"`
	// SweepSchedule is a cron expression for deleting expired codes; empty disables the sweep.
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// EmailConfig selects how email codes leave the process.
type EmailConfig struct {
	// Provider: resend | smtp | log
	Provider     string `mapstructure:"provider"`
	From         string `mapstructure:"from"`
	ResendAPIKey string `mapstructure:"resend_api_key"`
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPassword string `mapstructure:"smtp_password"`
}

// SMSConfig describes the JSON-over-HTTP SMS gateway.
type SMSConfig struct {
	// Provider: http | log | "" (SMS disabled)
	Provider string `mapstructure:"provider"`
	URL      string `mapstructure:"url"`
	APIKey   string `mapstructure:"api_key"`
	Sender   string `mapstructure:"sender"`
	// RatePerSecond bounds outbound gateway calls; 0 disables the limiter.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// RateLimitConfig throttles the code endpoints per client IP.
type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// LogConfig follows the slog/lumberjack settings used by the logger package.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	IncludeSrc bool   `mapstructure:"include_src"`
	ToFile     bool   `mapstructure:"to_file"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// PostgresURL формирует URL подключения для golang-migrate
func (d *DatabaseConfig) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     d.DBName,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// IsDebug reports whether the server runs in gin debug mode.
func (c *Config) IsDebug() bool {
	return c.Server.Mode == "" || c.Server.Mode == "debug"
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.mode", "debug")
	vip.SetDefault("server.readTimeout", 10)
	vip.SetDefault("server.writeTimeout", 10)

	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("database.migrations_dir", "migrations")

	vip.SetDefault("redis.mode", "single")

	vip.SetDefault("verification.code_ttl", 10*time.Minute)
	vip.SetDefault("verification.max_attempts", 5)
	vip.SetDefault("verification.lockout", 5*time.Minute)
	vip.SetDefault("verification.delivery_timeout", 10*time.Second)
	vip.SetDefault("verification.attempt_store", "postgres")
	vip.SetDefault("verification.sweep_schedule", "")

	vip.SetDefault("email.provider", "log")
	vip.SetDefault("email.smtp_port", 587)

	vip.SetDefault("sms.burst", 1)

	vip.SetDefault("rate_limit.limit", 10)
	vip.SetDefault("rate_limit.window", time.Minute)

	vip.SetDefault("log.level", "info")
	vip.SetDefault("log.filename", "logs/fleet-api.log")
	vip.SetDefault("log.max_size", 100)
	vip.SetDefault("log.max_age", 28)
	vip.SetDefault("log.max_backups", 3)
}

func bindEnv(vip *viper.Viper) {
	// Server
	vip.BindEnv("server.port", "SERVER_PORT")
	vip.BindEnv("server.mode", "GIN_MODE")
	vip.BindEnv("server.allowed_origins", "SERVER_ALLOWED_ORIGINS")

	// Database
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")
	vip.BindEnv("database.migrations_dir", "DATABASE_MIGRATIONS_DIR")

	// Redis
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	// JWT / internal API
	vip.BindEnv("jwt.secret", "JWT_SECRET")
	vip.BindEnv("jwt.issuer", "JWT_ISSUER")
	vip.BindEnv("internal.api_keys", "INTERNAL_API_KEYS")

	// Verification
	vip.BindEnv("verification.code_ttl", "VERIFICATION_CODE_TTL")
	vip.BindEnv("verification.max_attempts", "VERIFICATION_MAX_ATTEMPTS")
	vip.BindEnv("verification.lockout", "VERIFICATION_LOCKOUT")
	vip.BindEnv("verification.delivery_timeout", "VERIFICATION_DELIVERY_TIMEOUT")
	vip.BindEnv("verification.code_pepper", "VERIFICATION_CODE_PEPPER")
	vip.BindEnv("verification.attempt_store", "VERIFICATION_ATTEMPT_STORE")
	vip.BindEnv("verification.sweep_schedule", "VERIFICATION_SWEEP_SCHEDULE")

	// Email
	vip.BindEnv("email.provider", "EMAIL_PROVIDER")
	vip.BindEnv("email.from", "EMAIL_FROM")
	vip.BindEnv("email.resend_api_key", "RESEND_API_KEY")
	vip.BindEnv("email.smtp_host", "SMTP_HOST")
	vip.BindEnv("email.smtp_port", "SMTP_PORT")
	vip.BindEnv("email.smtp_user", "SMTP_USER")
	vip.BindEnv("email.smtp_password", "SMTP_PASSWORD")

	// SMS
	vip.BindEnv("sms.provider", "SMS_PROVIDER")
	vip.BindEnv("sms.url", "SMS_GATEWAY_URL")
	vip.BindEnv("sms.api_key", "SMS_GATEWAY_API_KEY")
	vip.BindEnv("sms.sender", "SMS_SENDER")
	vip.BindEnv("sms.rate_per_second", "SMS_RATE_PER_SECOND")

	// Log
	vip.BindEnv("log.level", "LOG_LEVEL")
	vip.BindEnv("log.to_file", "LOG_TO_FILE")
	vip.BindEnv("log.filename", "LOG_FILENAME")
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	vip := viper.New() // новый экземпляр, без глобального состояния

	setDefaults(vip)
	bindEnv(vip)

	if configPath != "" {
		vip.SetConfigFile(configPath)
		// Файл необязателен: env vars и умолчания покрывают все параметры
		if err := vip.ReadInConfig(); err != nil {
			log.Printf("[Config] could not read config file %q, using env/defaults: %v", configPath, err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Списки из env приходят одной строкой через запятую
	cfg.Internal.APIKeys = splitList(cfg.Internal.APIKeys)
	cfg.Redis.Addrs = splitList(cfg.Redis.Addrs)
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
		return fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required (check JWT_SECRET env var)")
	}

	v := c.Verification
	if v.CodeTTL <= 0 {
		return fmt.Errorf("verification.code_ttl must be positive, got %s", v.CodeTTL)
	}
	if v.MaxAttempts <= 0 {
		return fmt.Errorf("verification.max_attempts must be positive, got %d", v.MaxAttempts)
	}
	if v.Lockout <= 0 {
		return fmt.Errorf("verification.lockout must be positive, got %s", v.Lockout)
	}
	if v.DeliveryTimeout <= 0 {
		return fmt.Errorf("verification.delivery_timeout must be positive, got %s", v.DeliveryTimeout)
	}
	switch v.AttemptStore {
	case "postgres":
	case "redis":
		if !c.Redis.Enabled() {
			return fmt.Errorf("verification.attempt_store=redis requires redis addr (check REDIS_ADDR env var)")
		}
	default:
		return fmt.Errorf("unsupported verification.attempt_store %q", v.AttemptStore)
	}

	switch c.Email.Provider {
	case "log":
	case "resend":
		if c.Email.ResendAPIKey == "" || c.Email.From == "" {
			return fmt.Errorf("email provider resend requires RESEND_API_KEY and EMAIL_FROM")
		}
	case "smtp":
		if c.Email.SMTPHost == "" || c.Email.From == "" {
			return fmt.Errorf("email provider smtp requires SMTP_HOST and EMAIL_FROM")
		}
	default:
		return fmt.Errorf("unsupported email provider %q", c.Email.Provider)
	}

	switch c.SMS.Provider {
	case "", "log":
	case "http":
		if c.SMS.URL == "" {
			return fmt.Errorf("sms provider http requires SMS_GATEWAY_URL")
		}
	default:
		return fmt.Errorf("unsupported sms provider %q", c.SMS.Provider)
	}

	// Вне debug режима требуем секреты, которые в разработке можно опустить
	if !c.IsDebug() {
		if c.Database.Password == "" {
			return fmt.Errorf("database password is required in production mode (check DATABASE_PASSWORD env var)")
		}
		if v.CodePepper == "" {
			return fmt.Errorf("verification code pepper is required in production mode (check VERIFICATION_CODE_PEPPER env var)")
		}
		if len(c.Internal.APIKeys) == 0 {
			return fmt.Errorf("internal api keys are required in production mode (check INTERNAL_API_KEYS env var)")
		}
		if c.Email.Provider == "log" || c.SMS.Provider == "log" {
			log.Println("[Config] Warning: log delivery channel enabled outside debug mode, codes will be written to logs")
		}
	}
	return nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
