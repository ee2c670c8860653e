package inferhttp

import (
	"fmt"
	"net/url"
	"strings"
)

func normalizeBaseURL(baseURL string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/")
}

// ValidateBaseURL accepts absolute http(s) URLs with a host and no userinfo,
// query or fragment.
func ValidateBaseURL(baseURL string) error {
	baseURL = normalizeBaseURL(baseURL)
	if baseURL == "" {
		return fmt.Errorf("classifier url is required for the http backend")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid classifier url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid classifier url %q: absolute URL with host is required", baseURL)
	}
	if u.User != nil {
		return fmt.Errorf("invalid classifier url %q: userinfo is not allowed", baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid classifier url %q: query and fragment are not allowed", baseURL)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("invalid classifier url %q: host is required", baseURL)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("invalid classifier url %q: http or https is required", baseURL)
	}
	return nil
}
