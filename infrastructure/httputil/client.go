package httputil

import (
	"fmt"
	"net/http"
	"time"
)

// ClientConfig holds standard client configuration used to build the outbound
// http.Client for a single upstream endpoint.
type ClientConfig struct {
	// BaseURL is the endpoint URL (will be normalized).
	BaseURL string

	// Timeout is the request timeout. Zero means use default.
	Timeout time.Duration

	// HTTPClient is the base HTTP client to use (e.g. a transport with tuned
	// connection pooling). If nil, a default client will be created.
	HTTPClient *http.Client

	// MaxBodyBytes is carried in the config but not applied: NewClient and
	// NewClientWithBaseURL do not read it, and the returned client does not
	// cap response body size.
	MaxBodyBytes int64
}

// ClientDefaults holds default values for client configuration.
type ClientDefaults struct {
	Timeout          time.Duration
	MaxBodyBytes     int64
	NormalizeBaseURL bool
}

// DefaultClientDefaults returns standard default values.
func DefaultClientDefaults() ClientDefaults {
	return ClientDefaults{
		Timeout:          30 * time.Second,
		MaxBodyBytes:     1 << 20, // 1MiB
		NormalizeBaseURL: true,
	}
}

// NewClient creates an HTTP client with standardized timeout handling.
func NewClient(cfg ClientConfig, defaults ClientDefaults) (*http.Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaults.Timeout
	}
	forceTimeout := cfg.Timeout != 0

	client := CopyHTTPClientWithTimeout(cfg.HTTPClient, timeout, forceTimeout)
	return client, nil
}

// NewClientWithBaseURL creates a client with endpoint URL normalization.
// Returns the HTTP client and the normalized URL.
func NewClientWithBaseURL(cfg ClientConfig, defaults ClientDefaults) (*http.Client, string, error) {
	normalizedURL := cfg.BaseURL
	if defaults.NormalizeBaseURL {
		normalized, _, err := NormalizeEndpointURL(cfg.BaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("normalize endpoint url: %w", err)
		}
		normalizedURL = normalized
	}

	client, err := NewClient(ClientConfig{
		BaseURL:    normalizedURL,
		Timeout:    cfg.Timeout,
		HTTPClient: cfg.HTTPClient,
	}, defaults)
	if err != nil {
		return nil, "", err
	}

	return client, normalizedURL, nil
}

// ResolveMaxBodyBytes returns the effective max body size from config and defaults.
func ResolveMaxBodyBytes(cfg int64, defaultBytes int64) int64 {
	if cfg <= 0 {
		return defaultBytes
	}
	return cfg
}
