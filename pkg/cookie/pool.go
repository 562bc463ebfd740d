package cookie

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediagrab/pkg/logger"
	"mediagrab/pkg/platform"
)

// Options tunes pool behavior. CooldownWindow and ErrorThreshold have no
// universally right values; both are deployment tunables.
type Options struct {
	CooldownWindow time.Duration
	ErrorThreshold int
}

// MigrationReport tallies one MigrateLegacy run
type MigrationReport struct {
	Migrated int `json:"migrated"`
	Errors   int `json:"errors"`
}

// Pool owns every credential record and funnels all state transitions
// through Checkout and Release. The single mutex makes the
// available→in_use transition exclusive, so two concurrent checkouts can
// never hold the same credential.
type Pool struct {
	mu    sync.Mutex
	creds map[string]*Credential

	store  Store
	cipher *Cipher
	opts   Options
	log    logger.Logger
	now    func() time.Time
}

// NewPool creates a pool over the given store and cipher, loading all
// persisted credentials into the in-memory arena. Credentials left in_use
// by a previous process are recovered to available.
func NewPool(ctx context.Context, store Store, cipher *Cipher, opts Options, log logger.Logger) (*Pool, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.ErrorThreshold <= 0 {
		opts.ErrorThreshold = 5
	}
	if opts.CooldownWindow <= 0 {
		opts.CooldownWindow = 5 * time.Minute
	}

	p := &Pool{
		creds:  make(map[string]*Credential),
		store:  store,
		cipher: cipher,
		opts:   opts,
		log:    log,
		now:    time.Now,
	}

	loaded, err := store.LoadAllCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	for i := range loaded {
		c := loaded[i]
		if c.Status == StatusInUse {
			// in_use never survives a restart; nothing holds the lease.
			c.Status = StatusAvailable
		}
		p.creds[c.ID] = &c
	}

	log.InfoWithFields("credential pool loaded", map[string]interface{}{
		"credentials": len(p.creds),
	})
	return p, nil
}

// Checkout borrows the least-burdened available credential for the
// platform, or returns nil when none qualifies. With forceFresh, any
// credential used inside the cooldown window is excluded.
func (p *Pool) Checkout(ctx context.Context, plat platform.Platform, forceFresh bool) (*Lease, error) {
	p.mu.Lock()

	var candidates []*Credential
	cutoff := p.now().Add(-p.opts.CooldownWindow)
	for _, c := range p.creds {
		if c.Platform != plat || !c.Enabled || c.Status != StatusAvailable {
			continue
		}
		if forceFresh && c.LastUsedAt.After(cutoff) {
			continue
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		p.mu.Unlock()
		return nil, nil
	}

	// Least-recently-burdened first: spreads load and isolates
	// credentials that have started failing.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].UseCount != candidates[j].UseCount {
			return candidates[i].UseCount < candidates[j].UseCount
		}
		if candidates[i].ErrorCount != candidates[j].ErrorCount {
			return candidates[i].ErrorCount < candidates[j].ErrorCount
		}
		return candidates[i].ID < candidates[j].ID
	})

	chosen := candidates[0]
	chosen.Status = StatusInUse
	snapshot := *chosen
	p.mu.Unlock()

	cookieValue, err := p.cipher.Decrypt(snapshot.Payload)
	if err != nil {
		// Unreadable payload; put the credential out of rotation.
		p.log.ErrorWithFields("failed to decrypt credential payload", map[string]interface{}{
			"credential_id": snapshot.ID,
			"error":         err.Error(),
		})
		p.transition(ctx, snapshot.ID, func(c *Credential) {
			c.Status = StatusError
		})
		return nil, fmt.Errorf("credential %s is unreadable: %w", snapshot.ID, err)
	}

	p.persist(ctx, snapshot.ID)

	p.log.DebugWithFields("credential checked out", map[string]interface{}{
		"credential_id": snapshot.ID,
		"platform":      plat.String(),
		"use_count":     snapshot.UseCount,
	})

	return &Lease{ID: snapshot.ID, Platform: plat, Cookie: cookieValue}, nil
}

// Release hands a borrowed credential back, recording the outcome.
// Unknown ids are ignored so a release after admin deletion is harmless.
func (p *Pool) Release(ctx context.Context, id string, outcome Outcome) {
	changed := p.transition(ctx, id, func(c *Credential) {
		switch outcome {
		case OutcomeSuccess:
			c.Status = StatusAvailable
			c.UseCount++
			c.LastUsedAt = p.now()
		case OutcomeBanned:
			// Provider explicitly invalidated the account; threshold
			// does not apply.
			c.Status = StatusBanned
		default:
			c.ErrorCount++
			if c.ErrorCount >= p.opts.ErrorThreshold {
				c.Status = StatusError
			} else {
				c.Status = StatusAvailable
			}
		}
	})

	if changed {
		p.log.DebugWithFields("credential released", map[string]interface{}{
			"credential_id": id,
			"outcome":       string(outcome),
		})
	}
}

// transition applies fn to the credential under the pool lock and
// persists the result. Returns false when id is unknown.
func (p *Pool) transition(ctx context.Context, id string, fn func(*Credential)) bool {
	p.mu.Lock()
	c, ok := p.creds[id]
	if !ok {
		p.mu.Unlock()
		return false
	}
	fn(c)
	p.mu.Unlock()

	p.persist(ctx, id)
	return true
}

// persist writes the current record to the store; persistence failures are
// logged, never surfaced, so pool state stays authoritative in-process
func (p *Pool) persist(ctx context.Context, id string) {
	p.mu.Lock()
	c, ok := p.creds[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	snapshot := *c
	p.mu.Unlock()

	if err := p.store.SaveCredential(ctx, snapshot); err != nil {
		p.log.WarnWithFields("failed to persist credential", map[string]interface{}{
			"credential_id": id,
			"error":         err.Error(),
		})
	}
}

// Add encrypts a plaintext cookie and registers it as a new available
// credential
func (p *Pool) Add(ctx context.Context, plat platform.Platform, plainCookie string) (*Info, error) {
	if !plat.Valid() {
		return nil, fmt.Errorf("unknown platform: %s", plat)
	}
	if plainCookie == "" {
		return nil, fmt.Errorf("cookie payload is required")
	}

	payload, err := p.cipher.Encrypt(plainCookie)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt cookie: %w", err)
	}

	c := &Credential{
		ID:        uuid.NewString(),
		Platform:  plat,
		Payload:   payload,
		Status:    StatusAvailable,
		Enabled:   true,
		CreatedAt: p.now(),
	}

	p.mu.Lock()
	p.creds[c.ID] = c
	p.mu.Unlock()

	p.persist(ctx, c.ID)

	info := c.info()
	return &info, nil
}

// Remove deletes a credential by explicit admin action
func (p *Pool) Remove(ctx context.Context, id string) error {
	p.mu.Lock()
	_, ok := p.creds[id]
	delete(p.creds, id)
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("credential not found: %s", id)
	}
	return p.store.DeleteCredential(ctx, id)
}

// Reset clears a credential's error state and returns it to rotation
func (p *Pool) Reset(ctx context.Context, id string) error {
	if !p.transition(ctx, id, func(c *Credential) {
		c.Status = StatusAvailable
		c.ErrorCount = 0
		c.Enabled = true
	}) {
		return fmt.Errorf("credential not found: %s", id)
	}
	return nil
}

// Expire marks a credential expired so it leaves rotation without losing
// its history
func (p *Pool) Expire(ctx context.Context, id string) error {
	if !p.transition(ctx, id, func(c *Credential) {
		c.Status = StatusExpired
	}) {
		return fmt.Errorf("credential not found: %s", id)
	}
	return nil
}

// List returns masked credential views, optionally filtered by platform
// (empty platform lists everything)
func (p *Pool) List(plat platform.Platform) []Info {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Info
	for _, c := range p.creds {
		if plat != "" && c.Platform != plat {
			continue
		}
		out = append(out, c.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns credential counts by status for the platform. It never
// exposes payloads.
func (p *Pool) Snapshot(plat platform.Platform) map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts := map[string]int{
		string(StatusAvailable): 0,
		string(StatusInUse):     0,
		string(StatusExpired):   0,
		string(StatusBanned):    0,
		string(StatusError):     0,
	}
	for _, c := range p.creds {
		if plat != "" && c.Platform != plat {
			continue
		}
		counts[string(c.Status)]++
	}
	return counts
}

// MigrateLegacy encrypts every legacy plaintext payload in place. Partial
// failure is non-fatal; the run continues and reports the tally. A second
// run over fully migrated records reports zero migrations.
func (p *Pool) MigrateLegacy(ctx context.Context) MigrationReport {
	p.mu.Lock()
	var legacy []string
	for id, c := range p.creds {
		if !IsEncrypted(c.Payload) {
			legacy = append(legacy, id)
		}
	}
	p.mu.Unlock()
	sort.Strings(legacy)

	var report MigrationReport
	for _, id := range legacy {
		p.mu.Lock()
		c, ok := p.creds[id]
		if !ok || IsEncrypted(c.Payload) {
			p.mu.Unlock()
			continue
		}
		plain := c.Payload
		p.mu.Unlock()

		encrypted, err := p.cipher.Encrypt(plain)
		if err != nil {
			report.Errors++
			p.log.ErrorWithFields("failed to migrate credential", map[string]interface{}{
				"credential_id": id,
				"error":         err.Error(),
			})
			continue
		}

		p.transition(ctx, id, func(c *Credential) {
			c.Payload = encrypted
		})
		report.Migrated++
	}

	p.log.InfoWithFields("legacy credential migration finished", map[string]interface{}{
		"migrated": report.Migrated,
		"errors":   report.Errors,
	})
	return report
}
