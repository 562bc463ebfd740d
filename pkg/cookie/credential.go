// Package cookie owns the per-platform authentication credential pool:
// storage, rotation, health tracking, and encryption of cookie payloads.
package cookie

import (
	"time"

	"mediagrab/pkg/platform"
)

// Status is one credential lifecycle state
type Status string

const (
	StatusAvailable Status = "available"
	StatusInUse     Status = "in_use"
	StatusExpired   Status = "expired"
	StatusBanned    Status = "banned"
	StatusError     Status = "error"
)

// Outcome reports how a borrowed credential fared
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeBanned  Outcome = "banned"
)

// Credential is one stored authentication cookie. Payload is the encrypted
// cookie string; adapters only ever see the decrypted value through a Lease.
type Credential struct {
	ID         string            `json:"id"`
	Platform   platform.Platform `json:"platform"`
	Payload    string            `json:"payload"`
	Status     Status            `json:"status"`
	UseCount   int               `json:"use_count"`
	ErrorCount int               `json:"error_count"`
	LastUsedAt time.Time         `json:"last_used_at"`
	Enabled    bool              `json:"enabled"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Lease is a borrowed credential. Cookie is the decrypted payload; the
// borrower must hand the lease back through Pool.Release on every exit path.
type Lease struct {
	ID       string
	Platform platform.Platform
	Cookie   string
}

// Info is a Credential view safe to expose outside the pool: the payload
// is masked, never decrypted
type Info struct {
	ID            string            `json:"id"`
	Platform      platform.Platform `json:"platform"`
	MaskedPayload string            `json:"masked_payload"`
	Status        Status            `json:"status"`
	UseCount      int               `json:"use_count"`
	ErrorCount    int               `json:"error_count"`
	LastUsedAt    time.Time         `json:"last_used_at"`
	Enabled       bool              `json:"enabled"`
}

// maskPayload masks all but the edges of an opaque payload string
func maskPayload(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func (c *Credential) info() Info {
	return Info{
		ID:            c.ID,
		Platform:      c.Platform,
		MaskedPayload: maskPayload(c.Payload),
		Status:        c.Status,
		UseCount:      c.UseCount,
		ErrorCount:    c.ErrorCount,
		LastUsedAt:    c.LastUsedAt,
		Enabled:       c.Enabled,
	}
}
