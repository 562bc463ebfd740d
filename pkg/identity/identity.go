// Package identity holds rotatable browser-fingerprint profiles used to
// vary outbound request headers per platform.
package identity

import (
	"context"

	"mediagrab/pkg/platform"
)

// Profile describes one browser fingerprint. A profile is immutable once
// selected for a request.
type Profile struct {
	Platform        platform.Platform `json:"platform"`
	UserAgent       string            `json:"user_agent"`
	ClientHints     string            `json:"client_hints"`
	SecChUaPlatform string            `json:"sec_ch_ua_platform"`
	IsMobile        bool              `json:"is_mobile"`
	IsChromium      bool              `json:"is_chromium"`
	Priority        int               `json:"priority"`
	Enabled         bool              `json:"enabled"`
}

// Headers returns the outbound header set for the profile
func (p Profile) Headers() map[string]string {
	h := map[string]string{
		"User-Agent": p.UserAgent,
	}
	if p.IsChromium {
		h["Sec-Ch-Ua"] = p.ClientHints
		h["Sec-Ch-Ua-Platform"] = p.SecChUaPlatform
		if p.IsMobile {
			h["Sec-Ch-Ua-Mobile"] = "?1"
		} else {
			h["Sec-Ch-Ua-Mobile"] = "?0"
		}
	}
	return h
}

// Loader supplies profiles from persistent storage
type Loader interface {
	LoadIdentityProfiles(ctx context.Context, p platform.Platform) ([]Profile, error)
}

// DefaultProfile is the built-in fallback used when no profiles are
// configured for a platform
func DefaultProfile(p platform.Platform) Profile {
	return Profile{
		Platform:        p,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		ClientHints:     `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
		SecChUaPlatform: `"Windows"`,
		IsMobile:        false,
		IsChromium:      true,
		Priority:        1,
		Enabled:         true,
	}
}
