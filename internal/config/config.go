package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

const minBCryptCost = 12

type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Postgres PostgresConfig `env:",prefix=POSTGRES_"`
	Redis    RedisConfig    `env:",prefix=REDIS_"`
	JWT      JWTConfig      `env:",prefix=JWT_"`
	Security SecurityConfig `env:",prefix="`
	Lockout  LockoutConfig  `env:",prefix=LOCKOUT_"`
	Recovery RecoveryConfig `env:",prefix="`
	Google   GoogleConfig   `env:",prefix=GOOGLE_"`
	Mail     MailConfig     `env:",prefix=MAIL_"`
	SMTP     SMTPConfig     `env:",prefix=SMTP_"`
	CORS     CORSConfig     `env:",prefix=CORS_"`
	Env      string         `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
	// TrustedProxies feeds gin's ClientIP; empty means trust none
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

type PostgresConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=care_auth"`
	Password string `env:"PASSWORD,default=care_auth_password"`
	DBName   string `env:"DB,default=care_auth_db"`
	SSLMode  string `env:"SSLMODE,default=disable"`
	// AutoMigrate applies the embedded migrations on startup
	AutoMigrate bool `env:"AUTO_MIGRATE,default=true"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type JWTConfig struct {
	Secret             string   `env:"SECRET,required"`
	Issuer             string   `env:"ISSUER,default=care-auth"`
	AccessTokenExpiry  Duration `env:"ACCESS_TOKEN_EXPIRY,default=1h"`
	RefreshTokenExpiry Duration `env:"REFRESH_TOKEN_EXPIRY,default=30d"`
}

type SecurityConfig struct {
	BCryptCost        int      `env:"BCRYPT_COST,default=12"`
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=10"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
}

// LockoutConfig tunes the progressive account lockout
type LockoutConfig struct {
	MaxAttempts  int      `env:"MAX_ATTEMPTS,default=5"`
	BaseDuration Duration `env:"BASE_DURATION,default=15m"`
	Window       Duration `env:"WINDOW,default=60m"`
	Cap          Duration `env:"CAP,default=24h"`
	RecordTTL    Duration `env:"RECORD_TTL,default=24h"`
	StoreTimeout Duration `env:"STORE_TIMEOUT,default=250ms"`
	StoreRetries int      `env:"STORE_RETRIES,default=2"`
	FailOpen     bool     `env:"FAIL_OPEN,default=false"`
}

type RecoveryConfig struct {
	OTPTTL         Duration `env:"OTP_TTL,default=10m"`
	OTPMaxAttempts int      `env:"OTP_MAX_ATTEMPTS,default=5"`
	ResetTokenTTL  Duration `env:"RESET_TOKEN_TTL,default=1h"`
}

// GoogleConfig is optional; without a client id the Google routes answer 503
type GoogleConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	RedirectURL  string   `env:"REDIRECT_URL,default=http://localhost:8080/api/v1/auth/google/callback"`
	Audiences    []string `env:"AUDIENCES"`
}

// Enabled reports whether Google sign-in is configured
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != ""
}

type MailConfig struct {
	FromAddress    string `env:"FROM_ADDRESS,default=no-reply@care.local"`
	ResetURLWeb    string `env:"RESET_URL_WEB,default=http://localhost:3000/reset-password"`
	ResetURLMobile string `env:"RESET_URL_MOBILE,default=careapp://reset-password"`
	QueueName      string `env:"QUEUE,default=mail"`
	Concurrency    int    `env:"WORKER_CONCURRENCY,default=4"`
}

type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT,default=587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
}

// Enabled reports whether outgoing mail has somewhere to go
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// URL returns the connection string in URL form, as golang-migrate expects
func (p PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// IsTest reports whether the service runs under the test environment
func (c *Config) IsTest() bool {
	return c.Env == "test"
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom loads configuration through an arbitrary lookuper, e.g. a map in tests
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var config Config

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &config,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	var errs []error

	if len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters long"))
	}
	if c.Security.BCryptCost < minBCryptCost && !c.IsTest() {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be at least %d", minBCryptCost))
	}

	l := c.Lockout
	if l.MaxAttempts < 1 {
		errs = append(errs, errors.New("LOCKOUT_MAX_ATTEMPTS must be positive"))
	}
	if l.BaseDuration.Duration <= 0 || l.Cap.Duration < l.BaseDuration.Duration {
		errs = append(errs, errors.New("LOCKOUT_CAP must be at least LOCKOUT_BASE_DURATION"))
	}
	if l.RecordTTL.Duration < l.Window.Duration || l.RecordTTL.Duration < l.Cap.Duration {
		errs = append(errs, errors.New("LOCKOUT_RECORD_TTL must cover both LOCKOUT_WINDOW and LOCKOUT_CAP"))
	}
	if l.StoreRetries < 0 {
		errs = append(errs, errors.New("LOCKOUT_STORE_RETRIES must not be negative"))
	}

	if c.Recovery.OTPMaxAttempts < 1 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS must be positive"))
	}

	return errors.Join(errs...)
}

// LoadWithDefaults loads configuration with default context
func LoadWithDefaults() (*Config, error) {
	return Load(context.Background())
}
