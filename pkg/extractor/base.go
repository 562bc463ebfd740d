package extractor

import (
	"context"

	"mediagrab/pkg/cache"
	"mediagrab/pkg/cookie"
	"mediagrab/pkg/errors"
	"mediagrab/pkg/media"
	"mediagrab/pkg/platform"
)

// fetchFunc performs the platform-specific provider call and
// normalization. headers already carry the identity profile and, when a
// credential was checked out, the cookie.
type fetchFunc func(ctx context.Context, headers map[string]string, opts Options) (*media.Result, error)

// base implements the extraction contract steps shared by every adapter:
// cache lookup, identity and credential acquisition, guaranteed credential
// release, result validation, and the cache write-back.
type base struct {
	deps Deps
	plat platform.Platform

	// requiresAuth marks platforms that refuse the content class without
	// a credential; extraction fails COOKIE_REQUIRED when the pool is dry.
	requiresAuth bool
}

func (b *base) Platform() platform.Platform {
	return b.plat
}

// extract runs the shared contract around fetch
func (b *base) extract(ctx context.Context, canonicalURL string, opts Options, fetch fetchFunc) *media.Result {
	key := cache.Key{Platform: b.plat, URL: canonicalURL}

	if opts.SkipCache {
		return b.networked(ctx, opts, fetch)
	}

	if result, ok := b.deps.Cache.Get(key); ok {
		return result
	}

	// Concurrent misses on one key collapse into a single provider call;
	// the cache stores the fill result, including negative-cacheable
	// failures.
	result, err := b.deps.Cache.Fetch(key, func() (*media.Result, error) {
		return b.networked(ctx, opts, fetch), nil
	})
	if err != nil {
		return media.FailureFromError(err)
	}
	return result
}

// networked performs one credentialed provider call
func (b *base) networked(ctx context.Context, opts Options, fetch fetchFunc) *media.Result {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	profile := b.deps.Identity.Select(ctx, b.plat)
	headers := profile.Headers()

	var lease *cookie.Lease
	if b.requiresAuth || opts.ForceFreshCredential {
		var err error
		lease, err = b.deps.Pool.Checkout(ctx, b.plat, opts.ForceFreshCredential)
		if err != nil {
			b.deps.Log.WarnWithFields("credential checkout failed", map[string]interface{}{
				"platform": b.plat.String(),
				"error":    err.Error(),
			})
		}
		if lease == nil && b.requiresAuth {
			return media.Failure(errors.KindCookieRequired,
				"no credential available and the platform requires authentication")
		}
	}

	outcome := cookie.OutcomeFailure
	if lease != nil {
		headers["Cookie"] = lease.Cookie
		// Release on every exit path, recording how the call went.
		defer func() {
			b.deps.Pool.Release(ctx, lease.ID, outcome)
		}()
	}

	result, err := fetch(ctx, headers, opts)
	if err != nil {
		result = media.FailureFromError(err)
	}
	result = result.Validate()

	if result.Failed() {
		if result.ErrorCode == errors.KindCookieBanned {
			outcome = cookie.OutcomeBanned
		}
		return result
	}

	outcome = cookie.OutcomeSuccess
	result.UsedCookie = lease != nil
	return result
}
