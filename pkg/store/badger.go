// Package store provides the BadgerDB-backed persistence collaborator for
// credentials and identity profiles.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"mediagrab/pkg/cookie"
	"mediagrab/pkg/identity"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/platform"
)

const (
	credentialKeyPrefix = "cred:"
	profileKeyPrefix    = "profile:"
)

// Badger persists credentials and identity profiles in a local BadgerDB.
// It satisfies cookie.Store and identity.Loader.
type Badger struct {
	db  *badger.DB
	log logger.Logger
}

// Open opens (or creates) the database at path. An empty path opens an
// in-memory database, used in tests.
func Open(path string, log logger.Logger) (*Badger, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	opts := badger.DefaultOptions(path).
		WithLogger(newBadgerLogAdapter(log)).
		WithNumVersionsToKeep(1)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %q: %w", path, err)
	}

	log.InfoWithFields("store opened", map[string]interface{}{
		"path":      path,
		"in_memory": path == "",
	})
	return &Badger{db: db, log: log}, nil
}

// Close flushes and closes the database
func (b *Badger) Close() error {
	return b.db.Close()
}

func credentialKey(id string) []byte {
	return []byte(credentialKeyPrefix + id)
}

func profileKey(p platform.Platform) []byte {
	return []byte(profileKeyPrefix + string(p))
}

// SaveCredential writes one credential record
func (b *Badger) SaveCredential(_ context.Context, c cookie.Credential) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(credentialKey(c.ID), data)
	})
}

// DeleteCredential removes one credential record
func (b *Badger) DeleteCredential(_ context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(credentialKey(id))
	})
}

// LoadAllCredentials returns every stored credential
func (b *Badger) LoadAllCredentials(ctx context.Context) ([]cookie.Credential, error) {
	return b.loadCredentials(ctx, "")
}

// LoadCredentials returns the stored credentials for one platform
func (b *Badger) LoadCredentials(ctx context.Context, p platform.Platform) ([]cookie.Credential, error) {
	return b.loadCredentials(ctx, p)
}

func (b *Badger) loadCredentials(_ context.Context, p platform.Platform) ([]cookie.Credential, error) {
	var out []cookie.Credential
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(credentialKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var c cookie.Credential
				if err := json.Unmarshal(val, &c); err != nil {
					// Skip unreadable records rather than failing the
					// whole load.
					b.log.WarnWithFields("skipping corrupt credential record", map[string]interface{}{
						"key":   string(it.Item().Key()),
						"error": err.Error(),
					})
					return nil
				}
				if p == "" || c.Platform == p {
					out = append(out, c)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return out, nil
}

// LoadIdentityProfiles returns the stored profile set for one platform
func (b *Badger) LoadIdentityProfiles(_ context.Context, p platform.Platform) ([]identity.Profile, error) {
	var out []identity.Profile
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(profileKey(p))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load identity profiles: %w", err)
	}
	return out, nil
}

// SaveIdentityProfiles replaces the stored profile set for one platform.
// The caller is responsible for invalidating any selector cache afterwards.
func (b *Badger) SaveIdentityProfiles(_ context.Context, p platform.Platform, profiles []identity.Profile) error {
	data, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(p), data)
	})
}

// badgerLogAdapter routes badger's internal logging through the service
// logger at debug level
type badgerLogAdapter struct {
	log logger.Logger
}

func newBadgerLogAdapter(log logger.Logger) *badgerLogAdapter {
	return &badgerLogAdapter{log: log.WithField("component", "badger")}
}

func (a *badgerLogAdapter) Errorf(format string, args ...interface{}) {
	a.log.Error(fmt.Sprintf(format, args...))
}

func (a *badgerLogAdapter) Warningf(format string, args ...interface{}) {
	a.log.Warn(fmt.Sprintf(format, args...))
}

func (a *badgerLogAdapter) Infof(format string, args ...interface{}) {
	a.log.Debug(fmt.Sprintf(format, args...))
}

func (a *badgerLogAdapter) Debugf(format string, args ...interface{}) {
	a.log.Debug(fmt.Sprintf(format, args...))
}
