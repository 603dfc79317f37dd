// Package urls provides validated URL string types. Construction goes
// through fallible parse functions so an invalid value is an error at the
// boundary, not a crash later.
package urls

import (
	"fmt"
	"net/url"
)

// URL is a string known to parse as an absolute URL with a scheme.
type URL string

// HTTPURL is a URL known to use the http or https scheme.
type HTTPURL string

// Parse validates that s is an absolute URL.
func Parse(s string) (URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", s, err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("invalid URL %q: missing scheme", s)
	}
	return URL(s), nil
}

// ParseHTTP validates that s is an absolute http or https URL.
func ParseHTTP(s string) (HTTPURL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid HTTP URL %q: %w", s, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid HTTP URL %q: scheme %q", s, u.Scheme)
	}
	return HTTPURL(s), nil
}

func (u URL) String() string { return string(u) }

func (u HTTPURL) String() string { return string(u) }

// URL widens an HTTPURL to the general URL type.
func (u HTTPURL) URL() URL { return URL(u) }
