// Package config loads the service configuration from defaults,
// command line flags and environment variables (in increasing priority),
// and validates the result.
package config

import (
	"flag"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the service. Values are immutable after New().
type Config struct {
	RunAddr  string `env:"SERVER_ADDRESS" validate:"hostname_port"`
	LogLevel string `env:"LOG_LEVEL" validate:"loglevel"`

	DatabaseDSN         string        `env:"DATABASE_DSN"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT"`
	MigrationsDir       string        `env:"MIGRATIONS_DIR"`
	DBFileName          string        `env:"FILE_STORAGE_PATH" validate:"filepath"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDatabase int           `env:"REDIS_DATABASE"`
	CacheTimeout  time.Duration `env:"CACHE_TIMEOUT"`

	JWTSigningKey string        `env:"JWT_SECRET_KEY" validate:"required"`
	TokenTTL      time.Duration `env:"JWT_EXPIRATION"`

	CodeLength          int           `env:"SHORT_CODE_LENGTH" validate:"gt=0"`
	MaxGenerateAttempts int           `env:"MAX_GENERATE_ATTEMPTS" validate:"gt=0"`
	StatsFlushInterval  time.Duration `env:"STATS_FLUSH_INTERVAL"`
	StatsQueueCapacity  int           `env:"STATS_QUEUE_CAPACITY" validate:"gt=0"`
}

// InitOption configures the New() behavior.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing disables command line flags parsing.
// Tests use it because the test binary owns the flag set.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	if path == "" {
		return true
	}
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	allowedLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	return allowedLogLevels[fieldLevel.Field().String()]
}

func (c *Config) validate() error {
	validate := validator.New()

	if err := validate.RegisterValidation("loglevel", validateLogLevel); err != nil {
		return err
	}

	if err := validate.RegisterValidation("filepath", validateFilePath); err != nil {
		return err
	}

	return validate.Struct(c)
}

// New builds the configuration: defaults first, then command line flags,
// then environment variables (including a .env file when present).
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	cfg := &Config{
		RunAddr:             ":8080",
		LogLevel:            "info",
		DBConnectionTimeout: 10 * time.Second,
		MigrationsDir:       "cmd/shortlink/migrations",
		CacheTimeout:        200 * time.Millisecond,
		JWTSigningKey:       "shortlink-dev-secret",
		TokenTTL:            time.Hour,
		CodeLength:          10,
		MaxGenerateAttempts: 5,
		StatsFlushInterval:  5 * time.Second,
		StatsQueueCapacity:  1024,
	}

	if !options.disableFlagsParsing {
		flag.StringVar(&cfg.RunAddr, "a", cfg.RunAddr, "address and port to run server")
		flag.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "logger level")
		flag.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "a string with the database connection details")
		flag.StringVar(&cfg.DBFileName, "f", cfg.DBFileName, "JSON file name with database")
		flag.StringVar(&cfg.RedisAddr, "r", cfg.RedisAddr, "redis address for the redirect cache")
		flag.Parse()
	}

	var valuesFromEnv Config
	if err := env.Parse(&valuesFromEnv); err != nil {
		return nil, err
	}

	if valuesFromEnv.RunAddr != "" {
		cfg.RunAddr = valuesFromEnv.RunAddr
	}

	if valuesFromEnv.LogLevel != "" {
		cfg.LogLevel = valuesFromEnv.LogLevel
	}

	if valuesFromEnv.DatabaseDSN != "" {
		cfg.DatabaseDSN = valuesFromEnv.DatabaseDSN
	}

	if valuesFromEnv.DBConnectionTimeout != 0 {
		cfg.DBConnectionTimeout = valuesFromEnv.DBConnectionTimeout
	}

	if valuesFromEnv.MigrationsDir != "" {
		cfg.MigrationsDir = valuesFromEnv.MigrationsDir
	}

	if valuesFromEnv.DBFileName != "" {
		cfg.DBFileName = valuesFromEnv.DBFileName
	}

	if valuesFromEnv.RedisAddr != "" {
		cfg.RedisAddr = valuesFromEnv.RedisAddr
	}

	if valuesFromEnv.RedisPassword != "" {
		cfg.RedisPassword = valuesFromEnv.RedisPassword
	}

	if valuesFromEnv.RedisDatabase != 0 {
		cfg.RedisDatabase = valuesFromEnv.RedisDatabase
	}

	if valuesFromEnv.CacheTimeout != 0 {
		cfg.CacheTimeout = valuesFromEnv.CacheTimeout
	}

	if valuesFromEnv.JWTSigningKey != "" {
		cfg.JWTSigningKey = valuesFromEnv.JWTSigningKey
	}

	if valuesFromEnv.TokenTTL != 0 {
		cfg.TokenTTL = valuesFromEnv.TokenTTL
	}

	if valuesFromEnv.CodeLength != 0 {
		cfg.CodeLength = valuesFromEnv.CodeLength
	}

	if valuesFromEnv.MaxGenerateAttempts != 0 {
		cfg.MaxGenerateAttempts = valuesFromEnv.MaxGenerateAttempts
	}

	if valuesFromEnv.StatsFlushInterval != 0 {
		cfg.StatsFlushInterval = valuesFromEnv.StatsFlushInterval
	}

	if valuesFromEnv.StatsQueueCapacity != 0 {
		cfg.StatsQueueCapacity = valuesFromEnv.StatsQueueCapacity
	}

	return cfg, cfg.validate()
}
