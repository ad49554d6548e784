package keys

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const maxURLTextLen = 160

// Catalog returns the cache key of the parsed capabilities of one service
// URL and OGC service. Equivalent URLs (case of scheme/host, trailing
// slash, surrounding space) share a key.
func Catalog(serviceURL, service string) string {
	norm := normalizeURL(serviceURL)
	safe := sanitizeForKey(norm)
	if len(safe) > maxURLTextLen {
		safe = safe[:maxURLTextLen]
	}
	svc := strings.ToLower(strings.TrimSpace(service))
	if svc == "" {
		svc = "wms"
	}
	sum := xxhash.Sum64String(svc + " " + norm)
	return fmt.Sprintf("catalog:%s:%s:f=%016x", svc, safe, sum)
}

// Document derives the key of one raw capabilities document ("xml" or
// "json") from a catalog key.
func Document(catalogKey, kind string) string {
	return catalogKey + ":doc=" + kind
}

func normalizeURL(s string) string {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.TrimRight(s, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.Fragment = ""
	return u.String()
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// slashes, query punctuation and non-ASCII
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
