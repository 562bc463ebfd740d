package scraper

import (
	"context"
	"fmt"
	"time"

	"mediagrab/pkg/cache"
	"mediagrab/pkg/config"
	"mediagrab/pkg/cookie"
	"mediagrab/pkg/errors"
	"mediagrab/pkg/extractor"
	"mediagrab/pkg/identity"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/media"
	"mediagrab/pkg/platform"
	"mediagrab/pkg/ratelimit"
	"mediagrab/pkg/store"
)

// Service orchestrates one extraction end to end
type Service struct {
	resolver *platform.Resolver
	registry *extractor.Registry
	cache    *cache.Cache
	pool     *cookie.Pool
	identity *identity.Selector
	cfg      *config.Config
	log      logger.Logger

	closers []func() error
}

// New assembles a Service from pre-built collaborators
func New(resolver *platform.Resolver, registry *extractor.Registry, c *cache.Cache, pool *cookie.Pool, sel *identity.Selector, cfg *config.Config, log logger.Logger) *Service {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Service{
		resolver: resolver,
		registry: registry,
		cache:    c,
		pool:     pool,
		identity: sel,
		cfg:      cfg,
		log:      log,
	}
}

// NewFromConfig builds the full collaborator graph from configuration:
// badger-backed store, credential cipher and pool, identity selector,
// response cache, rate-limited client, and the platform adapters.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Service, error) {
	log := logger.GetLogger()

	db, err := store.Open(cfg.Store.Path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	cipher, err := cookie.NewCipherFromEnvironment(cfg.Cookie.PassphraseEnv, cfg.Store.Path)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize credential cipher: %w", err)
	}

	pool, err := cookie.NewPool(ctx, db, cipher, cookie.Options{
		CooldownWindow: cfg.Cookie.CooldownWindow,
		ErrorThreshold: cfg.Cookie.ErrorThreshold,
	}, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to build credential pool: %w", err)
	}

	responseCache := cache.New(cfg.Cache.TTL, cfg.Cache.NegativeTTL)
	selector := identity.NewSelector(db, log)
	selector.SetFallbackUserAgent(cfg.HTTP.UserAgent)
	limiter := ratelimit.NewPerPlatform(cfg.RateLimit.RequestsPerMinute, time.Minute)
	client := extractor.NewClient(limiter, cfg.Retry, log)

	registry := extractor.DefaultRegistry(extractor.Deps{
		Client:   client,
		Cache:    responseCache,
		Pool:     pool,
		Identity: selector,
		Log:      log,
	})

	svc := New(platform.NewResolver(cfg.Resolver.ShortlinkTimeout, log), registry, responseCache, pool, selector, cfg, log)
	svc.closers = append(svc.closers, db.Close)
	return svc, nil
}

// Close releases held resources, the persistence store included
func (s *Service) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Pool exposes the credential pool for administrative callers
func (s *Service) Pool() *cookie.Pool {
	return s.pool
}

// Extract resolves rawURL, dispatches to the platform adapter, and
// applies the bounded credential retry. It never returns an error; every
// failure arrives as the result's error code.
func (s *Service) Extract(ctx context.Context, rawURL string, opts extractor.Options) *media.Result {
	if opts.Timeout == 0 {
		opts.Timeout = s.cfg.HTTP.Timeout
	}

	res, err := s.resolver.Resolve(ctx, rawURL)
	if err != nil {
		return media.FailureFromError(err)
	}
	return s.dispatch(ctx, res, opts)
}

// dispatch runs the adapter for an already resolved URL
func (s *Service) dispatch(ctx context.Context, res *platform.Resolution, opts extractor.Options) *media.Result {
	ext, ok := s.registry.Get(res.Platform)
	if !ok {
		return media.Failure(errors.KindUnsupportedPlatform,
			fmt.Sprintf("no adapter registered for %s", res.Platform))
	}

	result := ext.Extract(ctx, res.CanonicalURL, opts)

	// A failure a fresh credential could cure gets exactly one more
	// attempt, bypassing the cache so the stored failure cannot
	// short-circuit it. That covers content that needs a credential as
	// well as explicit rejections of the one just used, which the pool
	// has already taken out of rotation.
	if result.Failed() && !opts.ForceFreshCredential &&
		(errors.RequiresCredential(result.ErrorCode) || errors.CredentialRejected(result.ErrorCode)) {
		s.log.InfoWithFields("retrying with a fresh credential", map[string]interface{}{
			"platform": res.Platform.String(),
			"code":     string(result.ErrorCode),
		})
		retryOpts := opts
		retryOpts.ForceFreshCredential = true
		retryOpts.SkipCache = true

		retried := ext.Extract(ctx, res.CanonicalURL, retryOpts)
		if !retried.Failed() && !opts.SkipCache {
			// Overwrite the negative entry left by the first attempt.
			s.cache.Set(cache.Key{Platform: res.Platform, URL: res.CanonicalURL}, retried)
		}
		return retried
	}

	return result
}

// ExtractDebug runs Extract and returns the introspection payload next to
// the result. The pool snapshot carries status counts only, never
// credential payloads.
func (s *Service) ExtractDebug(ctx context.Context, rawURL string, opts extractor.Options) (*media.Result, *media.DebugInfo) {
	start := time.Now()

	res, err := s.resolver.Resolve(ctx, rawURL)
	if err != nil {
		result := media.FailureFromError(err)
		return result, &media.DebugInfo{
			TotalTime:    time.Since(start),
			FormatCounts: result.CountByType(),
		}
	}

	if opts.Timeout == 0 {
		opts.Timeout = s.cfg.HTTP.Timeout
	}

	providerStart := time.Now()
	result := s.dispatch(ctx, res, opts)
	providerTime := time.Since(providerStart)

	if result.Cached {
		providerTime = 0
	}

	return result, &media.DebugInfo{
		Platform:     res.Platform.String(),
		Pool:         s.pool.Snapshot(res.Platform),
		TotalTime:    time.Since(start),
		ProviderTime: providerTime,
		FormatCounts: result.CountByType(),
	}
}

// InvalidateURL resolves rawURL and drops its cache entry
func (s *Service) InvalidateURL(ctx context.Context, rawURL string) error {
	res, err := s.resolver.Resolve(ctx, rawURL)
	if err != nil {
		return err
	}
	s.cache.Invalidate(cache.Key{Platform: res.Platform, URL: res.CanonicalURL})
	return nil
}

// InvalidatePlatform drops every cache entry and cached identity profile
// for a platform. Administrative callers use it after rotating profiles.
func (s *Service) InvalidatePlatform(p platform.Platform) {
	s.cache.InvalidatePlatform(p)
	s.identity.Invalidate(p)
}
