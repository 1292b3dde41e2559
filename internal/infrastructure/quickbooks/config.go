package quickbooks

import (
	"errors"
	"strings"
	"time"

	"github.com/sitebook/backend/internal/infrastructure/config"
)

const (
	// ProductionAPIURL is the production accounting API endpoint
	ProductionAPIURL = "https://quickbooks.api.intuit.com"
	// SandboxAPIURL is the sandbox accounting API endpoint
	SandboxAPIURL = "https://sandbox-quickbooks.api.intuit.com"
	// DefaultTokenURL is the OAuth2 token endpoint
	DefaultTokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"

	defaultMinorVersion = "70"
	defaultTimeout      = 30 * time.Second
	maxResponseSize     = 4 << 20
)

// Errors for client configuration
var (
	ErrConfigMissingBaseURL  = errors.New("quickbooks: base URL is required")
	ErrConfigMissingTokenURL = errors.New("quickbooks: token URL is required")
)

// Config holds the accounting API client settings
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
	MinorVersion string
	// Timeout bounds a single HTTP exchange; callers add their own deadline
	Timeout time.Duration
}

// NewConfig builds a client configuration from application settings
func NewConfig(cfg config.QuickBooksConfig) Config {
	c := Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		BaseURL:      cfg.BaseURL,
		TokenURL:     cfg.TokenURL,
		MinorVersion: cfg.MinorVersion,
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = ProductionAPIURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.MinorVersion == "" {
		c.MinorVersion = defaultMinorVersion
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return ErrConfigMissingBaseURL
	}
	if c.TokenURL == "" {
		return ErrConfigMissingTokenURL
	}
	return nil
}
