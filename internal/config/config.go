package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MinJWTSecretBytes is the shortest accepted HS256 signing secret.
const MinJWTSecretBytes = 32

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; nested structs share a prefix.
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"dev"`
	Port     string `env:"APP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DB DBConfig `envPrefix:"DB_"`

	JWTSecret        string        `env:"JWT_SECRET,required,notEmpty,unset"`
	AccessTokenTTL   time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	ResetTokenWindow time.Duration `env:"RESET_TOKEN_WINDOW" envDefault:"30m"`
	ResetLinkBase    string        `env:"RESET_LINK_BASE" envDefault:"http://localhost:8080/reset-password"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"10"`

	RabbitMQURL   string `env:"RABBITMQ_URL"`
	MailOutboxDir string `env:"MAIL_OUTBOX_DIR" envDefault:"logs"`

	Storage   StorageConfig
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Cache     CacheConfig     `envPrefix:"CACHE_"`
}

// DBConfig describes the MySQL connection.
type DBConfig struct {
	User            string        `env:"USER,required"`
	Pass            string        `env:"PASS"`
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            string        `env:"PORT" envDefault:"3306"`
	Name            string        `env:"NAME,required"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// StorageConfig selects where uploaded project documents go. When S3.Bucket
// is empty documents are written under UploadDir.
type StorageConfig struct {
	UploadDir      string   `env:"UPLOAD_DIR" envDefault:"uploads"`
	MaxUploadBytes int64    `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	S3             S3Config `envPrefix:"S3_"`
}

type S3Config struct {
	Bucket       string `env:"BUCKET"`
	Region       string `env:"REGION" envDefault:"us-east-1"`
	Endpoint     string `env:"ENDPOINT"`
	AccessKey    string `env:"ACCESS_KEY"`
	SecretKey    string `env:"SECRET_KEY,unset"`
	UsePathStyle bool   `env:"USE_PATH_STYLE"`
}

// IsDev reports whether the service runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// Load reads an optional .env file, then the process environment, and
// validates the result.
func Load() (Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.RateLimit.normalize()
	cfg.Cache.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if len(c.JWTSecret) < MinJWTSecretBytes {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", MinJWTSecretBytes))
	}
	if c.AccessTokenTTL < time.Second {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be at least 1s"))
	}
	if c.ResetTokenWindow < time.Minute {
		errs = append(errs, errors.New("RESET_TOKEN_WINDOW must be at least 1m"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}
	if c.Storage.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.DB.MaxOpenConns < 1 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS must be positive"))
	}
	return errors.Join(errs...)
}
