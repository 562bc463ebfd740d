// Package scraper is the extraction orchestrator. It resolves a submitted
// URL to a platform, dispatches to that platform's adapter, and applies
// the single bounded credential retry when a failure could be cured by a
// fresh credential.
//
// The Service coordinates the shared collaborators (response cache,
// credential pool, identity selector, outbound client) that the adapters
// draw on, and exposes the introspection and invalidation hooks the
// administrative surface consumes.
package scraper
