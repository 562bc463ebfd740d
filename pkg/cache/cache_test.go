package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediagrab/pkg/errors"
	"mediagrab/pkg/media"
	"mediagrab/pkg/platform"
)

func successResult() *media.Result {
	return &media.Result{
		Title:   "a post",
		Formats: []media.Format{{Type: media.FormatVideo, URL: "https://cdn.example/v.mp4", Label: "Video", ItemID: "1"}},
		Type:    media.TypeVideo,
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	c := New(time.Minute, time.Second)
	key := Key{Platform: platform.TikTok, URL: "https://www.tiktok.com/@u/video/1"}

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, successResult())

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.True(t, got.Cached)
	assert.Equal(t, "a post", got.Title)

	// The stored snapshot is not mutated by marking the returned copy.
	again, ok := c.Get(key)
	require.True(t, ok)
	assert.True(t, again.Cached)
}

func TestExpiredEntryIsNeverServed(t *testing.T) {
	c := New(time.Minute, time.Second)
	key := Key{Platform: platform.Instagram, URL: "https://www.instagram.com/p/abc"}
	c.Set(key, successResult())

	// Move the clock past expiry.
	c.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestNegativeCachingUsesShorterTTL(t *testing.T) {
	c := New(time.Minute, time.Second)
	key := Key{Platform: platform.Twitter, URL: "https://twitter.com/u/status/1"}
	c.Set(key, media.Failure(errors.KindNotFound, "gone"))

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.True(t, got.Failed())

	// Past the negative TTL but well inside the positive one.
	c.now = func() time.Time { return time.Now().Add(30 * time.Second) }
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestRetryableFailuresAreNotCached(t *testing.T) {
	c := New(time.Minute, time.Second)
	key := Key{Platform: platform.TikTok, URL: "https://www.tiktok.com/@u/video/9"}

	c.Set(key, media.Failure(errors.KindTimeout, "deadline exceeded"))
	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, media.Failure(errors.KindRateLimited, "429"))
	_, ok = c.Get(key)
	assert.False(t, ok)

	// Terminal failures are negative-cached.
	c.Set(key, media.Failure(errors.KindPrivateContent, "login required"))
	_, ok = c.Get(key)
	assert.True(t, ok)
}

func TestLastWriteWins(t *testing.T) {
	c := New(time.Minute, time.Second)
	key := Key{Platform: platform.TikTok, URL: "https://www.tiktok.com/@u/video/2"}

	first := successResult()
	second := successResult()
	second.Title = "newer snapshot"

	c.Set(key, first)
	c.Set(key, second)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "newer snapshot", got.Title)
}

func TestFetchDeduplicatesConcurrentFills(t *testing.T) {
	c := New(time.Minute, time.Second)
	key := Key{Platform: platform.TikTok, URL: "https://www.tiktok.com/@u/video/3"}

	var fills atomic.Int32
	fill := func() (*media.Result, error) {
		fills.Add(1)
		time.Sleep(20 * time.Millisecond)
		return successResult(), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := c.Fetch(key, fill)
			assert.NoError(t, err)
			assert.NotNil(t, result)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fills.Load())

	// Subsequent fetch is a pure hit.
	got, err := c.Fetch(key, fill)
	require.NoError(t, err)
	assert.True(t, got.Cached)
	assert.Equal(t, int32(1), fills.Load())
}

func TestInvalidatePlatform(t *testing.T) {
	c := New(time.Minute, time.Second)
	tiktok := Key{Platform: platform.TikTok, URL: "https://www.tiktok.com/@u/video/4"}
	insta := Key{Platform: platform.Instagram, URL: "https://www.instagram.com/p/xyz"}
	c.Set(tiktok, successResult())
	c.Set(insta, successResult())

	c.InvalidatePlatform(platform.TikTok)

	_, ok := c.Get(tiktok)
	assert.False(t, ok)
	_, ok = c.Get(insta)
	assert.True(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}
