package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/gn-clipper/news-clipper/internal/domain"
)

var seenBucket = []byte("seen")

// Store is the durable seen-set. Every method touches exactly one record.
type Store interface {
	HasSeen(fingerprint string) (bool, error)
	GetStatus(fingerprint string) (domain.Status, error)
	Get(fingerprint string) (domain.SeenRecord, error)
	Upsert(fingerprint string, status domain.Status, externalRef string) error
	Reserve(fingerprint string) (bool, error)
	Transition(fingerprint string, from []domain.Status, to domain.Status, externalRef string) (bool, error)
	ExpireClaim(fingerprint string, olderThan time.Duration) (bool, error)
	Stats() (map[domain.Status]int, error)
	Close() error
}

// Options configure the bbolt file.
type Options struct {
	Path        string
	OpenTimeout time.Duration
}

// BoltStore implements Store on a single bbolt file.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

var _ Store = (*BoltStore)(nil)

// Open opens (or creates) the seen-set file. A file locked by another process fails after
// OpenTimeout instead of blocking.
func Open(opts Options) (*BoltStore, error) {
	if opts.Path == "" {
		return nil, domain.StoreError("open", errors.New("store path is empty"))
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = time.Second
	}
	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, domain.StoreError("create store dir", err)
		}
	}

	db, err := bolt.Open(opts.Path, 0o600, &bolt.Options{Timeout: opts.OpenTimeout})
	if err != nil {
		return nil, domain.StoreError("open "+opts.Path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(seenBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, domain.StoreError("create bucket", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// HasSeen reports whether any record exists for fingerprint.
func (s *BoltStore) HasSeen(fingerprint string) (bool, error) {
	_, err := s.Get(fingerprint)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetStatus returns the last status, or domain.ErrNotFound.
func (s *BoltStore) GetStatus(fingerprint string) (domain.Status, error) {
	rec, err := s.Get(fingerprint)
	if err != nil {
		return domain.StatusNone, err
	}
	return rec.Status, nil
}

// Get loads the full record.
func (s *BoltStore) Get(fingerprint string) (domain.SeenRecord, error) {
	var (
		rec   domain.SeenRecord
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(seenBucket).Get([]byte(fingerprint))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return domain.SeenRecord{}, domain.StoreError("get "+fingerprint, err)
	}
	if !found {
		return domain.SeenRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

// Upsert creates or overwrites the record status. first_seen_at survives updates.
func (s *BoltStore) Upsert(fingerprint string, status domain.Status, externalRef string) error {
	if err := validate(fingerprint, status); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(seenBucket)
		rec, _, err := load(b, fingerprint)
		if err != nil {
			return err
		}
		return s.put(b, rec, fingerprint, status, externalRef)
	})
	return domain.StoreError("upsert "+fingerprint, err)
}

// Reserve inserts a claimed record only when none exists. It succeeds at most once per
// fingerprint for the life of the store.
func (s *BoltStore) Reserve(fingerprint string) (bool, error) {
	return s.Transition(fingerprint, []domain.Status{domain.StatusNone}, domain.StatusClaimed, "")
}

// Transition moves a record to status `to` only if its current status is in `from`.
// domain.StatusNone in `from` matches an absent record. An empty externalRef keeps the
// stored one.
func (s *BoltStore) Transition(fingerprint string, from []domain.Status, to domain.Status, externalRef string) (bool, error) {
	if err := validate(fingerprint, to); err != nil {
		return false, err
	}

	applied := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(seenBucket)
		rec, found, err := load(b, fingerprint)
		if err != nil {
			return err
		}
		current := domain.StatusNone
		if found {
			current = rec.Status
		}
		if !slices.Contains(from, current) {
			return nil
		}
		applied = true
		return s.put(b, rec, fingerprint, to, externalRef)
	})
	if err != nil {
		return false, domain.StoreError(fmt.Sprintf("transition %s to %s", fingerprint, to), err)
	}
	return applied, nil
}

// ExpireClaim marks a claim as failed when it has not been updated for olderThan, so a
// claim left behind by a crashed process can be reclaimed.
func (s *BoltStore) ExpireClaim(fingerprint string, olderThan time.Duration) (bool, error) {
	expired := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(seenBucket)
		rec, found, err := load(b, fingerprint)
		if err != nil {
			return err
		}
		if !found || rec.Status != domain.StatusClaimed || s.now().Sub(rec.UpdatedAt) < olderThan {
			return nil
		}
		expired = true
		return s.put(b, rec, fingerprint, domain.StatusFailed, "")
	})
	if err != nil {
		return false, domain.StoreError("expire claim "+fingerprint, err)
	}
	return expired, nil
}

// Stats counts records per status.
func (s *BoltStore) Stats() (map[domain.Status]int, error) {
	out := make(map[domain.Status]int, len(domain.Statuses))
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(seenBucket).ForEach(func(_, v []byte) error {
			var rec domain.SeenRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out[rec.Status]++
			return nil
		})
	})
	if err != nil {
		return nil, domain.StoreError("stats", err)
	}
	return out, nil
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) put(b *bolt.Bucket, rec domain.SeenRecord, fingerprint string, status domain.Status, externalRef string) error {
	now := s.now().UTC()
	if rec.FirstSeenAt.IsZero() {
		rec.FirstSeenAt = now
	}
	rec.Fingerprint = fingerprint
	rec.UpdatedAt = now
	rec.Status = status
	if externalRef != "" {
		rec.ExternalRef = externalRef
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return b.Put([]byte(fingerprint), raw)
}

func load(b *bolt.Bucket, fingerprint string) (domain.SeenRecord, bool, error) {
	raw := b.Get([]byte(fingerprint))
	if raw == nil {
		return domain.SeenRecord{}, false, nil
	}
	var rec domain.SeenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.SeenRecord{}, false, fmt.Errorf("decode record %s: %w", fingerprint, err)
	}
	return rec, true, nil
}

func validate(fingerprint string, status domain.Status) error {
	if fingerprint == "" {
		return errors.New("fingerprint is empty")
	}
	if !slices.Contains(domain.Statuses, status) {
		return fmt.Errorf("status %q cannot be stored", status)
	}
	return nil
}
