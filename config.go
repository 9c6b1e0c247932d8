package storefront

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the environment configuration for the storefront client.
type Config struct {
	// APIBaseURL is the base URL of the storefront API
	APIBaseURL string `env:"STOREFRONT_API_URL" envDefault:"https://localhost:5000/api"`

	// RequestTimeout is the fixed timeout applied to every network call
	RequestTimeout time.Duration `env:"STOREFRONT_REQUEST_TIMEOUT" envDefault:"30s"`

	// StoragePath is the sqlite file backing the durable stores; empty
	// keeps everything in memory
	StoragePath string `env:"STOREFRONT_STORAGE_PATH"`

	// CallbackAddr is the listen address of the payment-collector
	// callback bridge
	CallbackAddr string `env:"STOREFRONT_CALLBACK_ADDR" envDefault:"127.0.0.1:9753"`

	// RenewalLeeway is how close to expiry a credential may get before
	// it is renewed proactively
	RenewalLeeway time.Duration `env:"STOREFRONT_RENEWAL_LEEWAY" envDefault:"30s"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
