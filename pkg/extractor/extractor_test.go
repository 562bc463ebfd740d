package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediagrab/pkg/cache"
	"mediagrab/pkg/config"
	"mediagrab/pkg/cookie"
	"mediagrab/pkg/errors"
	"mediagrab/pkg/identity"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/media"
	"mediagrab/pkg/platform"
)

type stubLoader struct{}

func (stubLoader) LoadIdentityProfiles(ctx context.Context, p platform.Platform) ([]identity.Profile, error) {
	return nil, nil
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	cipher, err := cookie.NewCipher("extractor-test-passphrase")
	require.NoError(t, err)

	pool, err := cookie.NewPool(context.Background(), cookie.NewMemoryStore(), cipher, cookie.Options{
		CooldownWindow: time.Minute,
		ErrorThreshold: 3,
	}, logger.NewTestLogger())
	require.NoError(t, err)

	retryCfg := config.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return Deps{
		Client:   NewClient(nil, retryCfg, logger.NewTestLogger()),
		Cache:    cache.New(time.Minute, 30*time.Second),
		Pool:     pool,
		Identity: identity.NewSelector(stubLoader{}, logger.NewTestLogger()),
		Log:      logger.NewTestLogger(),
	}
}

const tiktokVideoBody = `{
	"statusCode": 0,
	"itemInfo": {"itemStruct": {
		"id": "7300000000000000000",
		"desc": "a video",
		"author": {"uniqueId": "someone", "nickname": "Some One"},
		"video": {
			"playAddr": "https://v.example/play.mp4",
			"cover": "https://v.example/cover.jpg",
			"bitrate": 1500000,
			"bitrateInfo": [
				{"gearName": "normal_540", "bitrate": 900000, "playAddr": {"urlList": ["https://v.example/540.mp4"]}},
				{"gearName": "hd_1080", "bitrate": 2500000, "playAddr": {"urlList": ["https://v.example/1080.mp4"]}}
			]
		},
		"music": {"title": "sound", "playUrl": "https://v.example/sound.mp3"},
		"stats": {"diggCount": 12, "commentCount": 3, "shareCount": 1, "playCount": 99}
	}}
}`

const tiktokSlideshowBody = `{
	"statusCode": 0,
	"itemInfo": {"itemStruct": {
		"id": "7300000000000000001",
		"desc": "photos",
		"author": {"uniqueId": "someone"},
		"imagePost": {"images": [
			{"imageURL": {"urlList": ["https://i.example/1.jpg"]}},
			{"imageURL": {"urlList": ["https://i.example/2.jpg"]}},
			{"imageURL": {"urlList": ["https://i.example/3.jpg"]}}
		]},
		"music": {"playUrl": "https://i.example/sound.mp3"}
	}}
}`

func newTikTokServer(t *testing.T, body string, calls *atomic.Int64) (*TikTok, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	tk := NewTikTok(newTestDeps(t))
	tk.apiBase = srv.URL
	return tk, srv
}

func TestTikTokVideoQualityTiers(t *testing.T) {
	tk, _ := newTikTokServer(t, tiktokVideoBody, nil)

	// The provider lists the 540p tier first; the primary format is still
	// the highest-bitrate one, with no option required.
	result := tk.Extract(context.Background(), "https://www.tiktok.com/@someone/video/7300000000000000000", Options{})
	require.False(t, result.Failed(), result.ErrorMessage)

	assert.Equal(t, media.TypeVideo, result.Type)
	assert.Equal(t, "a video", result.Title)
	assert.Equal(t, "someone", result.Author)

	require.True(t, len(result.Formats) >= 3)
	assert.Equal(t, "https://v.example/1080.mp4", result.Formats[0].URL)
	assert.Equal(t, "Video", result.Formats[0].Label)
	assert.Equal(t, "https://v.example/540.mp4", result.Formats[1].URL)
	assert.Equal(t, "Video (normal_540)", result.Formats[1].Label)
	assert.Equal(t, media.FormatAudio, result.Formats[len(result.Formats)-1].Type)

	require.NotNil(t, result.Engagement)
	assert.Equal(t, int64(12), result.Engagement.Likes)
	assert.Equal(t, int64(99), result.Engagement.Views)
}

func TestTikTokFallbackPrefersDownloadAddr(t *testing.T) {
	const body = `{
		"statusCode": 0,
		"itemInfo": {"itemStruct": {
			"id": "7300000000000000004",
			"author": {"uniqueId": "someone"},
			"video": {
				"playAddr": "https://v.example/watermarked.mp4",
				"downloadAddr": "https://v.example/clean.mp4",
				"cover": "https://v.example/cover.jpg"
			}
		}}
	}`
	tk, _ := newTikTokServer(t, body, nil)
	url := "https://www.tiktok.com/@someone/video/7300000000000000004"

	result := tk.Extract(context.Background(), url, Options{SkipCache: true})
	require.False(t, result.Failed(), result.ErrorMessage)
	assert.Equal(t, "https://v.example/watermarked.mp4", result.Formats[0].URL)

	result = tk.Extract(context.Background(), url, Options{SkipCache: true, PreferHighQuality: true})
	require.False(t, result.Failed())
	assert.Equal(t, "https://v.example/clean.mp4", result.Formats[0].URL)
}

func TestTikTokSlideshow(t *testing.T) {
	tk, _ := newTikTokServer(t, tiktokSlideshowBody, nil)

	result := tk.Extract(context.Background(), "https://www.tiktok.com/@someone/photo/7300000000000000001", Options{})
	require.False(t, result.Failed(), result.ErrorMessage)

	assert.Equal(t, media.TypeSlideshow, result.Type)
	counts := result.CountByType()
	assert.Equal(t, 3, counts[media.FormatImage])
	assert.Equal(t, 1, counts[media.FormatAudio])

	// Provider order is preserved and every slide gets its own item id.
	assert.Equal(t, "https://i.example/1.jpg", result.Formats[0].URL)
	assert.Equal(t, "7300000000000000001-1", result.Formats[0].ItemID)
	assert.Equal(t, "7300000000000000001-3", result.Formats[2].ItemID)
}

func TestTikTokProviderStatusMapping(t *testing.T) {
	tk, _ := newTikTokServer(t, `{"statusCode": 10216}`, nil)

	result := tk.Extract(context.Background(), "https://www.tiktok.com/@someone/video/7300000000000000002", Options{})
	require.True(t, result.Failed())
	assert.Equal(t, errors.KindPrivateContent, result.ErrorCode)
}

func TestExtractCacheHitSkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	tk, _ := newTikTokServer(t, tiktokVideoBody, &calls)
	url := "https://www.tiktok.com/@someone/video/7300000000000000000"

	first := tk.Extract(context.Background(), url, Options{})
	require.False(t, first.Failed())
	assert.False(t, first.Cached)

	second := tk.Extract(context.Background(), url, Options{})
	require.False(t, second.Failed())
	assert.True(t, second.Cached)
	assert.Equal(t, int64(1), calls.Load())
}

func TestExtractSkipCacheBypassesStore(t *testing.T) {
	var calls atomic.Int64
	tk, _ := newTikTokServer(t, tiktokVideoBody, &calls)
	url := "https://www.tiktok.com/@someone/video/7300000000000000000"

	for i := 0; i < 2; i++ {
		result := tk.Extract(context.Background(), url, Options{SkipCache: true})
		require.False(t, result.Failed())
		assert.False(t, result.Cached)
	}
	assert.Equal(t, int64(2), calls.Load())

	// Bypassed calls never populated the cache either.
	assert.Equal(t, 0, tk.deps.Cache.Len())
}

func TestExtractServerErrorNotCached(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	tk := NewTikTok(newTestDeps(t))
	tk.apiBase = srv.URL
	url := "https://www.tiktok.com/@someone/video/7300000000000000000"

	first := tk.Extract(context.Background(), url, Options{})
	require.True(t, first.Failed())
	assert.Equal(t, errors.KindAPI, first.ErrorCode)

	// Retryable failures are not negative-cached; the next call goes out.
	before := calls.Load()
	second := tk.Extract(context.Background(), url, Options{})
	require.True(t, second.Failed())
	assert.Greater(t, calls.Load(), before)
}

func TestExtractTimeoutReleasesCredential(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ig := NewInstagram(newTestDeps(t))
	ig.apiBase = srv.URL

	_, err := ig.deps.Pool.Add(context.Background(), platform.Instagram, "sessionid=xyz")
	require.NoError(t, err)

	result := ig.Extract(context.Background(), "https://www.instagram.com/p/Cabc123/", Options{
		Timeout:   50 * time.Millisecond,
		SkipCache: true,
	})
	require.True(t, result.Failed())
	assert.Equal(t, errors.KindTimeout, result.ErrorCode)

	// The credential went back to the arena rather than leaking in_use.
	snap := ig.deps.Pool.Snapshot(platform.Instagram)
	assert.Equal(t, 0, snap["in_use"])
}

func TestInstagramRequiresCredential(t *testing.T) {
	ig := NewInstagram(newTestDeps(t))

	result := ig.Extract(context.Background(), "https://www.instagram.com/p/Cabc123/", Options{SkipCache: true})
	require.True(t, result.Failed())
	assert.Equal(t, errors.KindCookieRequired, result.ErrorCode)
	assert.False(t, result.UsedCookie)
}

func TestInstagramCarousel(t *testing.T) {
	const body = `{
		"status": "ok",
		"items": [{
			"pk": 1, "code": "Cabc123", "media_type": 8,
			"caption": {"text": "three things"},
			"user": {"username": "someone", "full_name": "Some One"},
			"carousel_media": [
				{"media_type": 1, "image_versions2": {"candidates": [{"url": "https://i.example/a.jpg", "width": 1080}]}},
				{"media_type": 2, "image_versions2": {"candidates": [{"url": "https://i.example/b.jpg", "width": 1080}]},
					"video_versions": [{"url": "https://v.example/b.mp4", "height": 1080}]},
				{"media_type": 1, "image_versions2": {"candidates": [{"url": "https://i.example/c.jpg", "width": 1080}]}}
			],
			"like_count": 7, "comment_count": 2
		}]
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	ig := NewInstagram(newTestDeps(t))
	ig.apiBase = srv.URL
	_, err := ig.deps.Pool.Add(context.Background(), platform.Instagram, "sessionid=xyz")
	require.NoError(t, err)

	result := ig.Extract(context.Background(), "https://www.instagram.com/p/Cabc123/", Options{})
	require.False(t, result.Failed(), result.ErrorMessage)

	assert.Equal(t, media.TypeSlideshow, result.Type)
	assert.True(t, result.UsedCookie)
	require.Len(t, result.Formats, 3)
	assert.Equal(t, media.FormatImage, result.Formats[0].Type)
	assert.Equal(t, media.FormatVideo, result.Formats[1].Type)
	assert.Equal(t, "Cabc123-2", result.Formats[1].ItemID)
}

func TestInstagramImageQualityTiers(t *testing.T) {
	const body = `{
		"status": "ok",
		"items": [{
			"pk": 2, "code": "Cdef456", "media_type": 1,
			"caption": {"text": "one photo"},
			"user": {"username": "someone"},
			"image_versions2": {"candidates": [
				{"url": "https://i.example/full.jpg", "width": 1080, "height": 1350},
				{"url": "https://i.example/mid.jpg", "width": 750, "height": 938}
			]}
		}]
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	ig := NewInstagram(newTestDeps(t))
	ig.apiBase = srv.URL
	_, err := ig.deps.Pool.Add(context.Background(), platform.Instagram, "sessionid=xyz")
	require.NoError(t, err)

	result := ig.Extract(context.Background(), "https://www.instagram.com/p/Cdef456/", Options{})
	require.False(t, result.Failed(), result.ErrorMessage)

	assert.Equal(t, media.TypeImage, result.Type)
	require.Len(t, result.Formats, 2)
	assert.Equal(t, "https://i.example/full.jpg", result.Formats[0].URL)
	assert.Equal(t, "Image", result.Formats[0].Label)
	assert.Equal(t, "Image (750x938)", result.Formats[1].Label)
}

func TestInstagramSessionExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "fail", "message": "login_required"}`))
	}))
	t.Cleanup(srv.Close)

	ig := NewInstagram(newTestDeps(t))
	ig.apiBase = srv.URL
	_, err := ig.deps.Pool.Add(context.Background(), platform.Instagram, "sessionid=xyz")
	require.NoError(t, err)

	result := ig.Extract(context.Background(), "https://www.instagram.com/p/Cabc123/", Options{SkipCache: true})
	require.True(t, result.Failed())
	assert.Equal(t, errors.KindCookieExpired, result.ErrorCode)
}

func TestInstagramOpenGraphFallback(t *testing.T) {
	// The structured endpoint answers with an HTML interstitial; the
	// adapter degrades to the page's OpenGraph tags.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head>
			<meta property="og:title" content="a post" />
			<meta property="og:image" content="https://i.example/og.jpg" />
		</head><body></body></html>`))
	}))
	t.Cleanup(srv.Close)

	ig := NewInstagram(newTestDeps(t))
	ig.apiBase = srv.URL
	_, err := ig.deps.Pool.Add(context.Background(), platform.Instagram, "sessionid=xyz")
	require.NoError(t, err)

	result := ig.Extract(context.Background(), srv.URL+"/p/Cabc123/", Options{})
	require.False(t, result.Failed(), result.ErrorMessage)

	assert.Equal(t, media.TypeImage, result.Type)
	assert.Equal(t, "a post", result.Title)
	require.Len(t, result.Formats, 1)
	assert.Equal(t, "https://i.example/og.jpg", result.Formats[0].URL)
}

func TestTwitterVideo(t *testing.T) {
	const body = `{
		"__typename": "Tweet",
		"id_str": "1700000000000000000",
		"text": "look at this",
		"user": {"screen_name": "someone", "name": "Some One"},
		"video": {
			"poster": "https://t.example/poster.jpg",
			"variants": [
				{"type": "application/x-mpegURL", "src": "https://t.example/pl.m3u8"},
				{"type": "video/mp4", "src": "https://t.example/vid/640x360/a.mp4"},
				{"type": "video/mp4", "src": "https://t.example/vid/1280x720/a.mp4"}
			]
		},
		"favorite_count": 42, "conversation_count": 5
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	tw := NewTwitter(newTestDeps(t))
	tw.apiBase = srv.URL

	// Variants arrive ascending by quality; the best one leads and the
	// secondary carries its rendition size.
	result := tw.Extract(context.Background(), "https://twitter.com/someone/status/1700000000000000000", Options{})
	require.False(t, result.Failed(), result.ErrorMessage)

	assert.Equal(t, media.TypeVideo, result.Type)
	require.Len(t, result.Formats, 2)
	assert.Equal(t, "https://t.example/vid/1280x720/a.mp4", result.Formats[0].URL)
	assert.Equal(t, "Video", result.Formats[0].Label)
	assert.Equal(t, "https://t.example/vid/640x360/a.mp4", result.Formats[1].URL)
	assert.Equal(t, "Video (640x360)", result.Formats[1].Label)

	require.NotNil(t, result.Engagement)
	assert.Equal(t, int64(42), result.Engagement.Likes)
}

func TestTwitterMultiPhoto(t *testing.T) {
	const body = `{
		"__typename": "Tweet",
		"id_str": "1700000000000000001",
		"text": "two photos",
		"user": {"screen_name": "someone"},
		"photos": [
			{"url": "https://t.example/1.jpg", "width": 1200},
			{"url": "https://t.example/2.jpg", "width": 1200}
		]
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	tw := NewTwitter(newTestDeps(t))
	tw.apiBase = srv.URL

	result := tw.Extract(context.Background(), "https://twitter.com/someone/status/1700000000000000001", Options{})
	require.False(t, result.Failed())

	assert.Equal(t, media.TypeSlideshow, result.Type)
	require.Len(t, result.Formats, 2)
	assert.Equal(t, "1700000000000000001-2", result.Formats[1].ItemID)
}

func TestTwitterTombstone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"__typename": "TweetTombstone", "tombstone": {"text": {"text": "This Tweet was deleted by the Tweet author."}}}`))
	}))
	t.Cleanup(srv.Close)

	tw := NewTwitter(newTestDeps(t))
	tw.apiBase = srv.URL

	result := tw.Extract(context.Background(), "https://twitter.com/someone/status/1700000000000000002", Options{})
	require.True(t, result.Failed())
	assert.Equal(t, errors.KindDeleted, result.ErrorCode)
}

func TestTweetWithoutMediaFailsNoMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"__typename": "Tweet", "id_str": "1700000000000000003", "text": "just words", "user": {"screen_name": "someone"}}`))
	}))
	t.Cleanup(srv.Close)

	tw := NewTwitter(newTestDeps(t))
	tw.apiBase = srv.URL

	result := tw.Extract(context.Background(), "https://twitter.com/someone/status/1700000000000000003", Options{})
	require.True(t, result.Failed())
	assert.Equal(t, errors.KindNoMedia, result.ErrorCode)
}

func TestRegistryDispatch(t *testing.T) {
	reg := DefaultRegistry(newTestDeps(t))

	for _, p := range platform.All() {
		e, ok := reg.Get(p)
		require.True(t, ok, p)
		assert.Equal(t, p, e.Platform())
	}

	_, ok := reg.Get(platform.Platform("youtube"))
	assert.False(t, ok)
}
