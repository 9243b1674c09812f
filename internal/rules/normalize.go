package rules

import (
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// NormalizeDomain reduces a URL or host to the lowercase host name used as a record key.
// Malformed input never fails: it falls back to a best-effort string transform.
func NormalizeDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}

	host := ""
	if u, err := url.Parse(candidate); err == nil {
		host = u.Hostname()
	}
	if host == "" {
		host = raw
	}

	host = stripWWW(strings.ToLower(host))
	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		host = ascii
	}
	return stripWWW(host)
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func stripWWW(host string) string {
	for strings.HasPrefix(host, "www.") {
		host = strings.TrimPrefix(host, "www.")
	}
	return host
}
