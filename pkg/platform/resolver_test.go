package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediagrab/pkg/errors"
	"mediagrab/pkg/logger"
)

func newTestResolver() *Resolver {
	return NewResolver(2*time.Second, logger.NewTestLogger())
}

func TestResolveSupportedURLs(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		platform  Platform
		canonical string
	}{
		{
			name:      "tiktok video",
			raw:       "https://www.tiktok.com/@someuser/video/7312345678901234567",
			platform:  TikTok,
			canonical: "https://www.tiktok.com/@someuser/video/7312345678901234567",
		},
		{
			name:      "tiktok photo post",
			raw:       "https://www.tiktok.com/@someuser/photo/7312345678901234567",
			platform:  TikTok,
			canonical: "https://www.tiktok.com/@someuser/photo/7312345678901234567",
		},
		{
			name:      "instagram reel with tracking params",
			raw:       "https://www.instagram.com/reel/Cxy_123-ab/?igsh=MWQ1ZGUxMzBkMA%3D%3D&utm_source=ig_web",
			platform:  Instagram,
			canonical: "https://www.instagram.com/reel/Cxy_123-ab",
		},
		{
			name:      "instagram post without scheme",
			raw:       "instagram.com/p/Cxy123abc",
			platform:  Instagram,
			canonical: "https://www.instagram.com/p/Cxy123abc",
		},
		{
			name:      "twitter status",
			raw:       "https://twitter.com/someone/status/1750000000000000000?s=20&t=abcdef",
			platform:  Twitter,
			canonical: "https://twitter.com/someone/status/1750000000000000000",
		},
		{
			name:      "x dot com status",
			raw:       "https://x.com/someone/status/1750000000000000000",
			platform:  Twitter,
			canonical: "https://twitter.com/someone/status/1750000000000000000",
		},
	}

	r := newTestResolver()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := r.Resolve(context.Background(), tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.platform, res.Platform)
			assert.Equal(t, tc.canonical, res.CanonicalURL)
		})
	}
}

func TestResolveTrackingVariantsAgree(t *testing.T) {
	r := newTestResolver()
	variants := []string{
		"https://www.tiktok.com/@u/video/123?is_from_webapp=1&sender_device=pc",
		"https://www.tiktok.com/@u/video/123?utm_source=copy",
		"https://www.tiktok.com/@u/video/123",
	}

	var first *Resolution
	for _, v := range variants {
		res, err := r.Resolve(context.Background(), v)
		require.NoError(t, err)
		if first == nil {
			first = res
			continue
		}
		assert.Equal(t, first.Platform, res.Platform)
		assert.Equal(t, first.CanonicalURL, res.CanonicalURL)
	}
}

func TestResolveInvalid(t *testing.T) {
	r := newTestResolver()
	cases := []struct {
		raw  string
		kind errors.Kind
	}{
		{"", errors.KindInvalidURL},
		{"ftp://example.com/file", errors.KindInvalidURL},
		{"https://example.com/watch?v=123", errors.KindUnsupportedPlatform},
		{"https://www.tiktok.com/about", errors.KindUnsupportedPlatform},
		{"https://twitter.com/someone", errors.KindUnsupportedPlatform},
	}

	for _, tc := range cases {
		_, err := r.Resolve(context.Background(), tc.raw)
		require.Error(t, err, "url %q", tc.raw)
		var e *errors.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, tc.kind, e.Kind, "url %q", tc.raw)
	}
}

func TestShortlinkExpansionFailureDegradesToInvalidURL(t *testing.T) {
	// No server behind the short-link host, so expansion fails fast.
	r := NewResolver(100*time.Millisecond, logger.NewTestLogger())
	_, err := r.Resolve(context.Background(), "https://vm.tiktok.com/ZMabcdef/")
	require.Error(t, err)

	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindInvalidURL, e.Kind)
}

func TestShortlinkExpansionSingleHop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "https://www.tiktok.com/@user/video/999?checksum=x", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	r := newTestResolver()
	u, err := parseURL(srv.URL + "/short")
	require.NoError(t, err)

	expanded, err := r.expand(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "www.tiktok.com", expanded.Hostname())
}
