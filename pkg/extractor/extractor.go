// Package extractor holds the per-platform extraction adapters and the
// contract they share.
package extractor

import (
	"context"
	"time"

	"mediagrab/pkg/cache"
	"mediagrab/pkg/cookie"
	"mediagrab/pkg/identity"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/media"
	"mediagrab/pkg/platform"
)

// Options controls one extraction
type Options struct {
	PreferHighQuality    bool
	SkipCache            bool
	Timeout              time.Duration
	ForceFreshCredential bool
}

// Extractor is the contract every platform adapter satisfies. Extract
// never returns a transport error; every failure is folded into the
// result's error code.
type Extractor interface {
	Platform() platform.Platform
	Extract(ctx context.Context, canonicalURL string, opts Options) *media.Result
}

// Deps are the shared collaborators injected into every adapter
type Deps struct {
	Client   *Client
	Cache    *cache.Cache
	Pool     *cookie.Pool
	Identity *identity.Selector
	Log      logger.Logger
}

// Registry dispatches to the adapter for a platform
type Registry struct {
	byPlatform map[platform.Platform]Extractor
}

// NewRegistry builds a registry from the given adapters
func NewRegistry(extractors ...Extractor) *Registry {
	byPlatform := make(map[platform.Platform]Extractor, len(extractors))
	for _, e := range extractors {
		byPlatform[e.Platform()] = e
	}
	return &Registry{byPlatform: byPlatform}
}

// Get returns the adapter for a platform
func (r *Registry) Get(p platform.Platform) (Extractor, bool) {
	e, ok := r.byPlatform[p]
	return e, ok
}

// DefaultRegistry wires up every supported platform adapter
func DefaultRegistry(deps Deps) *Registry {
	return NewRegistry(
		NewTikTok(deps),
		NewInstagram(deps),
		NewTwitter(deps),
	)
}
