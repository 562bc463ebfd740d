package platform

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"mediagrab/pkg/errors"
	"mediagrab/pkg/logger"
)

// Resolution is the outcome of classifying a submitted URL
type Resolution struct {
	Platform     Platform
	CanonicalURL string
}

// hostPattern matches one platform's content URLs by host and path
type hostPattern struct {
	platform Platform
	hosts    []string
	path     *regexp.Regexp
}

var patterns = []hostPattern{
	{
		platform: TikTok,
		hosts:    []string{"tiktok.com"},
		path:     regexp.MustCompile(`^/@[^/]+/(?:video|photo)/\d+`),
	},
	{
		platform: Instagram,
		hosts:    []string{"instagram.com"},
		path:     regexp.MustCompile(`^/(?:p|reel|reels|tv)/[A-Za-z0-9_-]+`),
	},
	{
		platform: Twitter,
		hosts:    []string{"twitter.com", "x.com"},
		path:     regexp.MustCompile(`^/[A-Za-z0-9_]+/status/\d+`),
	},
}

// shortlinkHosts are known redirectors that need a single expansion hop
// before pattern matching
var shortlinkHosts = map[string]bool{
	"vm.tiktok.com": true,
	"vt.tiktok.com": true,
	"t.co":          true,
}

// Resolver classifies raw URLs. Resolution is side-effect-free except for
// short-link expansion, which is one bounded outbound hop.
type Resolver struct {
	client *http.Client
	log    logger.Logger
}

// NewResolver creates a resolver whose short-link expansion is guarded by
// the given timeout
func NewResolver(shortlinkTimeout time.Duration, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Resolver{
		client: &http.Client{
			Timeout: shortlinkTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Expansion reads the Location header itself; never follow.
				return http.ErrUseLastResponse
			},
		},
		log: log,
	}
}

// Resolve classifies a raw URL into a platform and canonical URL.
// Failures are always INVALID_URL or UNSUPPORTED_PLATFORM taxonomy errors.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Resolution, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	if shortlinkHosts[hostOf(u)] {
		expanded, err := r.expand(ctx, u)
		if err != nil {
			// A failed expansion degrades to INVALID_URL, never a
			// network error.
			return nil, errors.Newf(errors.KindInvalidURL, "could not expand short link %s", u.Host)
		}
		u = expanded
	}

	host := hostOf(u)
	for _, p := range patterns {
		if !matchesHost(host, p.hosts) {
			continue
		}
		m := p.path.FindString(u.Path)
		if m == "" {
			continue
		}
		return &Resolution{
			Platform:     p.platform,
			CanonicalURL: "https://" + canonicalHost(p.hosts[0]) + m,
		}, nil
	}

	return nil, errors.Newf(errors.KindUnsupportedPlatform, "no supported platform matches %s", host)
}

// expand follows exactly one redirect hop of a known short-link host
func (r *Resolver) expand(ctx context.Context, u *url.URL) (*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	loc := resp.Header.Get("Location")
	if resp.StatusCode < 300 || resp.StatusCode >= 400 || loc == "" {
		return nil, errors.Newf(errors.KindInvalidURL, "short link did not redirect")
	}

	r.log.DebugWithFields("expanded short link", map[string]interface{}{
		"from": u.String(),
		"to":   loc,
	})

	return parseURL(loc)
}

// parseURL parses and minimally validates a raw URL, defaulting a missing
// scheme to https
func parseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New(errors.KindInvalidURL, "empty URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, errors.Newf(errors.KindInvalidURL, "malformed URL: %s", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Newf(errors.KindInvalidURL, "unsupported scheme: %s", u.Scheme)
	}
	return u, nil
}

// hostOf returns the lowercased host with any www prefix stripped.
// Tracking parameters live in the query string, which canonicalization
// drops entirely.
func hostOf(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// matchesHost reports whether host equals, or is a subdomain of, any of
// the pattern hosts
func matchesHost(host string, hosts []string) bool {
	for _, h := range hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// canonicalHost maps a pattern host to its canonical www form
func canonicalHost(h string) string {
	switch h {
	case "tiktok.com", "instagram.com":
		return "www." + h
	}
	return h
}
