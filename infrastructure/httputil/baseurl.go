package httputil

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeEndpointURL normalizes and validates an upstream endpoint URL.
//
// It trims whitespace, removes trailing slashes, validates scheme/host, and
// disallows embedded user info (a common source of request-smuggling-style
// confusion when a URL is later re-parsed by an HTTP client).
func NormalizeEndpointURL(raw string) (string, *url.URL, error) {
	endpointURL := strings.TrimRight(strings.TrimSpace(raw), "/")
	if endpointURL == "" {
		return "", nil, fmt.Errorf("endpoint url is required")
	}

	parsed, err := url.Parse(endpointURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", nil, fmt.Errorf("endpoint url must be a valid absolute URL")
	}
	if parsed.User != nil {
		return "", nil, fmt.Errorf("endpoint url must not include user info")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", nil, fmt.Errorf("endpoint url scheme must be http or https")
	}

	return endpointURL, parsed, nil
}
