package handler

import (
	"net/url"
	"path"
	"strings"
)

// OriginAllowed reports whether the host of origin matches one of patterns.
// Patterns use path.Match syntax against the host, the same rule the
// websocket upgrade applies.
func OriginAllowed(patterns []string, origin string) bool {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, p := range patterns {
		ok, err := path.Match(strings.ToLower(strings.TrimSpace(p)), host)
		if err == nil && ok {
			return true
		}
	}
	return false
}
