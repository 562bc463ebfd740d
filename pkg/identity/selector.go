package identity

import (
	"context"
	"math/rand/v2"
	"sync"

	"mediagrab/pkg/logger"
	"mediagrab/pkg/platform"
)

// Selector picks identity profiles for outbound requests, weighted by
// priority. Loaded profile sets are cached per platform; collaborators
// that mutate profile records must call Invalidate so later selections
// observe the change.
type Selector struct {
	loader Loader
	log    logger.Logger

	mu    sync.RWMutex
	cache map[platform.Platform][]Profile

	// fallbackUA overrides the built-in default profile's user agent
	fallbackUA string

	// pick is swappable in tests for deterministic selection
	pick func(max int) int
}

// NewSelector creates a selector over the given profile loader. A nil
// loader always yields the built-in default profile.
func NewSelector(loader Loader, log logger.Logger) *Selector {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Selector{
		loader: loader,
		log:    log,
		cache:  make(map[platform.Platform][]Profile),
		pick:   rand.IntN,
	}
}

// SetFallbackUserAgent overrides the user agent of the built-in default
// profile; configured profiles keep their own
func (s *Selector) SetFallbackUserAgent(ua string) {
	s.fallbackUA = ua
}

// Select returns a profile for the platform. Enabled profiles are chosen
// with probability proportional to their priority; when none are
// configured the built-in default is returned.
func (s *Selector) Select(ctx context.Context, p platform.Platform) Profile {
	profiles := s.load(ctx, p)

	total := 0
	for _, prof := range profiles {
		if !prof.Enabled || prof.Priority <= 0 {
			continue
		}
		total += prof.Priority
	}
	if total == 0 {
		return s.defaultProfile(p)
	}

	n := s.pick(total)
	for _, prof := range profiles {
		if !prof.Enabled || prof.Priority <= 0 {
			continue
		}
		n -= prof.Priority
		if n < 0 {
			return prof
		}
	}
	return s.defaultProfile(p)
}

func (s *Selector) defaultProfile(p platform.Platform) Profile {
	prof := DefaultProfile(p)
	if s.fallbackUA != "" {
		prof.UserAgent = s.fallbackUA
	}
	return prof
}

// load returns the cached profile set for p, filling from the loader on
// first use
func (s *Selector) load(ctx context.Context, p platform.Platform) []Profile {
	s.mu.RLock()
	profiles, ok := s.cache[p]
	s.mu.RUnlock()
	if ok {
		return profiles
	}

	var loaded []Profile
	if s.loader != nil {
		var err error
		loaded, err = s.loader.LoadIdentityProfiles(ctx, p)
		if err != nil {
			// Selection falls back to the default profile; next call
			// retries the load.
			s.log.WarnWithFields("failed to load identity profiles", map[string]interface{}{
				"platform": p.String(),
				"error":    err.Error(),
			})
			return nil
		}
	}

	s.mu.Lock()
	s.cache[p] = loaded
	s.mu.Unlock()
	return loaded
}

// Invalidate clears the cached profile set for one platform
func (s *Selector) Invalidate(p platform.Platform) {
	s.mu.Lock()
	delete(s.cache, p)
	s.mu.Unlock()
}

// InvalidateAll clears every cached profile set
func (s *Selector) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[platform.Platform][]Profile)
	s.mu.Unlock()
}
