package urlutil

import (
	"net/url"
	"strings"
)

// trackingParams are query parameters stripped during normalization. Anything
// with a "utm_" prefix is removed as well.
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"gclsrc":  {},
	"dclid":   {},
	"msclkid": {},
	"mc_cid":  {},
	"mc_eid":  {},
	"igshid":  {},
	"ref":     {},
	"ref_src": {},
	"source":  {},
}

// Normalize canonicalizes a URL for dedup: lowercased host, a single
// trailing slash stripped (root "/" kept), tracking parameters removed,
// port and fragment preserved. Blank or unparseable input is returned
// unchanged. Idempotent.
func Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Host = strings.ToLower(u.Host)

	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if _, tracked := trackingParams[strings.ToLower(key)]; tracked || strings.HasPrefix(strings.ToLower(key), "utm_") {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String()
}

// ResolveRelative resolves a possibly relative reference against a base URL.
// Absolute refs pass through, protocol-relative refs inherit the base scheme,
// and path refs (including ".." segments) resolve per net/url semantics.
// Unresolvable input returns the ref unchanged.
func ResolveRelative(base, ref string) string {
	if ref == "" {
		return ref
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return ref
	}

	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return ref
	}

	return baseURL.ResolveReference(refURL).String()
}
