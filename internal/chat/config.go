package chat

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultModel                  = "gpt-4o-mini"
	DefaultBaseURL                = "https://api.openai.com/v1"
	DefaultMemorySize             = 8
	DefaultRateLimitMaxRequests   = 5
	DefaultRateLimitWindowSeconds = 60
	DefaultMaxInputChars          = 1500
	DefaultMaxOutputChars         = 1200
	DefaultRequestTimeout         = 60 * time.Second
	DefaultIdleTTL                = 24 * time.Hour
)

var ErrMissingAPIKey = errors.New("api key is required")

// Config is built once at startup and never mutated afterwards.
type Config struct {
	APIKey       string
	Provider     string
	Model        string
	BaseURL      string
	SystemPrompt string

	// MemorySize is the number of exchange pairs retained per user.
	MemorySize int

	RateLimitMaxRequests int
	RateLimitWindow      time.Duration

	// A ceiling of zero or less silences that direction entirely.
	MaxInputChars  int
	MaxOutputChars int

	// RequestTimeout bounds a single completion call. Zero means no bound
	// beyond the caller's context.
	RequestTimeout time.Duration

	// IdleTTL is how long a silent user's state is kept. Zero keeps it for
	// the life of the process.
	IdleTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		Provider:             "openai",
		Model:                DefaultModel,
		BaseURL:              DefaultBaseURL,
		MemorySize:           DefaultMemorySize,
		RateLimitMaxRequests: DefaultRateLimitMaxRequests,
		RateLimitWindow:      DefaultRateLimitWindowSeconds * time.Second,
		MaxInputChars:        DefaultMaxInputChars,
		MaxOutputChars:       DefaultMaxOutputChars,
		RequestTimeout:       DefaultRequestTimeout,
		IdleTTL:              DefaultIdleTTL,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if c.MemorySize < 0 {
		errs = append(errs, fmt.Errorf("memory size must not be negative, got %d", c.MemorySize))
	}
	if c.RateLimitMaxRequests <= 0 {
		errs = append(errs, fmt.Errorf("rate limit max requests must be positive, got %d", c.RateLimitMaxRequests))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Errorf("rate limit window must be positive, got %s", c.RateLimitWindow))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request timeout must not be negative, got %s", c.RequestTimeout))
	}
	if c.IdleTTL < 0 {
		errs = append(errs, fmt.Errorf("idle ttl must not be negative, got %s", c.IdleTTL))
	}
	return errors.Join(errs...)
}
