package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"kernelretry/pkg/retry"
)

type Config struct {
	Backend BackendConfig
	Client  ClientConfig
	Retry   RetryConfig
	Logger  LoggerConfig
}

type BackendConfig struct {
	Address             string        `env:"BACKEND_ADDRESS" envDefault:":8080" validate:"required"`
	ReadTimeout         time.Duration `env:"BACKEND_READ_TIMEOUT" envDefault:"5s" validate:"min=0"`
	WriteTimeout        time.Duration `env:"BACKEND_WRITE_TIMEOUT" envDefault:"30s" validate:"min=0"`
	ShutdownTimeout     time.Duration `env:"BACKEND_SHUTDOWN_TIMEOUT" envDefault:"10s" validate:"min=0"`
	MaxConnections      int           `env:"BACKEND_MAX_CONNECTIONS" envDefault:"1000" validate:"min=0"`
	APIKey              string        `env:"BACKEND_API_KEY"`
	RequestsPerSecond   float64       `env:"BACKEND_RPS" envDefault:"1" validate:"min=0"`
	Burst               int           `env:"BACKEND_BURST" envDefault:"2" validate:"min=0"`
	MaxConcurrentPerKey int           `env:"BACKEND_MAX_CONCURRENT_PER_KEY" envDefault:"4" validate:"min=0"`
	MaxFailedAuth       int           `env:"BACKEND_MAX_FAILED_AUTH" envDefault:"10" validate:"min=0"`
	AuthLockout         time.Duration `env:"BACKEND_AUTH_LOCKOUT" envDefault:"1m" validate:"min=0"`
	Latency             time.Duration `env:"BACKEND_LATENCY" envDefault:"100ms" validate:"min=0"`
	Model               string        `env:"BACKEND_MODEL" envDefault:"mock-gpt"`
}

type ClientConfig struct {
	BaseURLs []string      `env:"CLIENT_BASE_URLS" envDefault:"http://localhost:8080/v1" envSeparator:"," validate:"min=1,dive,url"`
	APIKey   string        `env:"CLIENT_API_KEY"`
	Model    string        `env:"CLIENT_MODEL" envDefault:"gpt-4o-mini" validate:"required"`
	Timeout  time.Duration `env:"CLIENT_TIMEOUT" envDefault:"2m" validate:"min=0"`
	System   string        `env:"CLIENT_SYSTEM_PROMPT"`
}

// RetryConfig is the retry policy as it appears in the environment or in a
// policy file.
type RetryConfig struct {
	MaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3" yaml:"max_attempts" validate:"min=1,max=100"`
	Strategy    string        `env:"RETRY_STRATEGY" envDefault:"exponential" yaml:"strategy" validate:"strategy"`
	BaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"2s" yaml:"base_delay" validate:"min=0"`
	MaxDelay    time.Duration `env:"RETRY_MAX_DELAY" envDefault:"0s" yaml:"max_delay" validate:"min=0"`
	StatusCodes []int         `env:"RETRY_STATUS_CODES" envDefault:"429" envSeparator:"," yaml:"retryable_status_codes" validate:"dive,min=100,max=599"`
}

type LoggerConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info" validate:"loglevel"`
	Pretty     bool   `env:"LOG_PRETTY" envDefault:"true"`
	JSON       bool   `env:"LOG_JSON" envDefault:"false"`
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100" validate:"min=0"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3" validate:"min=0"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28" validate:"min=0"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Address:             ":8080",
			ReadTimeout:         5 * time.Second,
			WriteTimeout:        30 * time.Second,
			ShutdownTimeout:     10 * time.Second,
			MaxConnections:      1000,
			RequestsPerSecond:   1,
			Burst:               2,
			MaxConcurrentPerKey: 4,
			MaxFailedAuth:       10,
			AuthLockout:         time.Minute,
			Latency:             100 * time.Millisecond,
			Model:               "mock-gpt",
		},
		Client: ClientConfig{
			BaseURLs: []string{"http://localhost:8080/v1"},
			Model:    "gpt-4o-mini",
			Timeout:  2 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Strategy:    retry.Exponential.String(),
			BaseDelay:   2 * time.Second,
			StatusCodes: []int{429},
		},
		Logger: LoggerConfig{
			Level:      "info",
			Pretty:     true,
			JSON:       false,
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Validate checks every section against its struct tags
func (c *Config) Validate() error {
	return validate(c)
}

// LoadPolicyFile reads a YAML retry policy. Keys missing from the file keep
// the values of base.
func LoadPolicyFile(path string, base RetryConfig) (RetryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RetryConfig{}, fmt.Errorf("failed to read policy file '%s': %w", path, err)
	}

	policy := base
	policy.StatusCodes = append([]int(nil), base.StatusCodes...)
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return RetryConfig{}, fmt.Errorf("failed to parse policy file '%s': %w", path, err)
	}
	if err := validate(&policy); err != nil {
		return RetryConfig{}, fmt.Errorf("invalid policy file '%s': %w", path, err)
	}
	return policy, nil
}

// Policy converts the configuration into an executor config
func (r RetryConfig) Policy() (retry.Config, error) {
	strategy, err := retry.ParseStrategy(r.Strategy)
	if err != nil {
		return retry.Config{}, err
	}

	cfg := retry.Config{
		MaxAttempts:          r.MaxAttempts,
		Strategy:             strategy,
		BaseDelay:            r.BaseDelay,
		MaxDelay:             r.MaxDelay,
		RetryableStatusCodes: append([]int(nil), r.StatusCodes...),
	}
	if err := cfg.Validate(); err != nil {
		return retry.Config{}, err
	}
	return cfg, nil
}

func newValidator() *validator.Validate {
	v := validator.New()

	_ = v.RegisterValidation("strategy", func(fl validator.FieldLevel) bool {
		_, err := retry.ParseStrategy(fl.Field().String())
		return err == nil
	})

	_ = v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case "", "debug", "info", "warn", "error", "fatal":
			return true
		default:
			return false
		}
	})

	return v
}

func validate(s interface{}) error {
	err := newValidator().Struct(s)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}

	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := fmt.Sprintf("'%s' failed rule '%s'", e.Namespace(), e.Tag())
		if e.Param() != "" {
			msg += fmt.Sprintf(" (expected: %s)", e.Param())
		}
		msg += fmt.Sprintf(", actual: '%v'", e.Value())
		messages = append(messages, msg)
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(messages, "; "))
}
