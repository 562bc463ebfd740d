package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediagrab/pkg/cookie"
	"mediagrab/pkg/identity"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/platform"
)

func openTestStore(t *testing.T) *Badger {
	t.Helper()
	b, err := Open("", logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestCredentialRoundTrip(t *testing.T) {
	b := openTestStore(t)
	ctx := context.Background()

	cred := cookie.Credential{
		ID:         "cred-1",
		Platform:   platform.TikTok,
		Payload:    "enc:v1:c2FsdA==:Y2lwaGVy",
		Status:     cookie.StatusAvailable,
		UseCount:   3,
		ErrorCount: 1,
		LastUsedAt: time.Now().UTC().Truncate(time.Second),
		Enabled:    true,
	}
	require.NoError(t, b.SaveCredential(ctx, cred))
	require.NoError(t, b.SaveCredential(ctx, cookie.Credential{
		ID: "cred-2", Platform: platform.Instagram, Status: cookie.StatusBanned,
	}))

	all, err := b.LoadAllCredentials(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	tiktok, err := b.LoadCredentials(ctx, platform.TikTok)
	require.NoError(t, err)
	require.Len(t, tiktok, 1)
	assert.Equal(t, cred.ID, tiktok[0].ID)
	assert.Equal(t, cred.UseCount, tiktok[0].UseCount)
	assert.Equal(t, cred.Status, tiktok[0].Status)

	require.NoError(t, b.DeleteCredential(ctx, "cred-1"))
	all, err = b.LoadAllCredentials(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSaveOverwritesCredential(t *testing.T) {
	b := openTestStore(t)
	ctx := context.Background()

	cred := cookie.Credential{ID: "cred-1", Platform: platform.Twitter, Status: cookie.StatusAvailable}
	require.NoError(t, b.SaveCredential(ctx, cred))

	cred.Status = cookie.StatusError
	cred.ErrorCount = 5
	require.NoError(t, b.SaveCredential(ctx, cred))

	loaded, err := b.LoadCredentials(ctx, platform.Twitter)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, cookie.StatusError, loaded[0].Status)
	assert.Equal(t, 5, loaded[0].ErrorCount)
}

func TestIdentityProfileRoundTrip(t *testing.T) {
	b := openTestStore(t)
	ctx := context.Background()

	// Missing platform loads as empty, not an error.
	profiles, err := b.LoadIdentityProfiles(ctx, platform.TikTok)
	require.NoError(t, err)
	assert.Empty(t, profiles)

	in := []identity.Profile{
		{Platform: platform.TikTok, UserAgent: "ua-desktop", Priority: 3, Enabled: true, IsChromium: true},
		{Platform: platform.TikTok, UserAgent: "ua-mobile", Priority: 1, Enabled: true, IsMobile: true},
	}
	require.NoError(t, b.SaveIdentityProfiles(ctx, platform.TikTok, in))

	profiles, err = b.LoadIdentityProfiles(ctx, platform.TikTok)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "ua-desktop", profiles[0].UserAgent)

	// Replacement semantics: a save fully supersedes the previous set.
	require.NoError(t, b.SaveIdentityProfiles(ctx, platform.TikTok, in[:1]))
	profiles, err = b.LoadIdentityProfiles(ctx, platform.TikTok)
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}
