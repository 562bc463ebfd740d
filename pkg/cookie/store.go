package cookie

import (
	"context"
	"sync"

	"mediagrab/pkg/platform"
)

// Store is the persistence collaborator for credentials. The pool owns
// all state transitions; the store just records them.
type Store interface {
	LoadCredentials(ctx context.Context, p platform.Platform) ([]Credential, error)
	LoadAllCredentials(ctx context.Context) ([]Credential, error)
	SaveCredential(ctx context.Context, c Credential) error
	DeleteCredential(ctx context.Context, id string) error
}

// MemoryStore is an in-memory Store used in tests and for fully
// process-local deployments
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]Credential)}
}

func (s *MemoryStore) LoadCredentials(_ context.Context, p platform.Platform) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Credential
	for _, c := range s.creds {
		if c.Platform == p {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) LoadAllCredentials(_ context.Context) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Credential, 0, len(s.creds))
	for _, c := range s.creds {
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) SaveCredential(_ context.Context, c Credential) error {
	s.mu.Lock()
	s.creds[c.ID] = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteCredential(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.creds, id)
	s.mu.Unlock()
	return nil
}
