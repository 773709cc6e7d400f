package crawlweb

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// analyticsParams are stripped from every normalized URL regardless of
// KeepPageParam, since they never affect page identity.
var analyticsParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true, "gclid": true, "fbclid": true,
}

// assetExtensions are dropped from link candidates during discovery
// (spec.md Section 4.7 step 7).
var assetExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".otf": true,
	".mp4": true, ".mp3": true, ".webm": true, ".ogg": true, ".wav": true, ".avi": true, ".mov": true,
	".css": true, ".js": true, ".map": true,
	".pdf": true, ".zip": true, ".gz": true, ".tar": true,
}

// NormalizeURL standardizes a URL for identity comparison: lowercases the
// scheme and host, drops default ports and the fragment, strips analytics
// query params (and, unless keepPageParam, the "page" param), and sorts
// remaining query keys. Extends the teacher's NormalizeURL with the
// analytics/pagination stripping spec.md Section 4.7 step 7 requires.
func NormalizeURL(rawURL string, keepPageParam bool) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if analyticsParams[lower] {
			q.Del(key)
			continue
		}
		if lower == "page" && !keepPageParam {
			q.Del(key)
		}
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	encoded := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range q[k] {
			encoded = append(encoded, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	u.RawQuery = strings.Join(encoded, "&")

	return u.String(), nil
}

// HasAssetExtension reports whether path ends in a filename extension
// that identifies non-HTML static assets.
func HasAssetExtension(path string) bool {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return false
	}
	return assetExtensions[strings.ToLower(path[idx:])]
}

// SameOriginOrRegistrableDomain reports whether candidate shares an origin
// or registrable domain (last two labels) with base.
func SameOriginOrRegistrableDomain(base, candidate *url.URL) bool {
	if strings.EqualFold(base.Host, candidate.Host) {
		return true
	}
	return strings.EqualFold(registrableDomain(base.Host), registrableDomain(candidate.Host))
}

func registrableDomain(host string) string {
	host = strings.ToLower(host)
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// HasPathPrefix reports whether path is at or beneath prefix.
func HasPathPrefix(path, prefix string) bool {
	if prefix == "" || prefix == "/" {
		return true
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

var whitespaceRe = regexp.MustCompile(`\s+`)

var smartQuoteReplacer = strings.NewReplacer(
	"‘", "'", "’", "'",
	"“", `"`, "”", `"`,
	"–", "-", "—", "-",
)

// NormalizeText lowercases, replaces smart quotes/dashes with ASCII
// equivalents, and collapses whitespace, for token comparison in the
// classifier's post-fetch refinement and the comparison report's fuzzy
// matcher.
func NormalizeText(s string) string {
	s = smartQuoteReplacer.Replace(s)
	s = strings.ToLower(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokens splits normalized text into whitespace-delimited tokens.
func Tokens(s string) []string {
	normalized := NormalizeText(s)
	if normalized == "" {
		return nil
	}
	return strings.Split(normalized, " ")
}
