// Package context implements the versioned context store: a write-through
// in-memory cache in front of a durable Backend, with append-only update and
// feedback histories.
package context

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned by mutating operations on an unknown context id.
var ErrNotFound = errors.New("context not found")

// Event types published by the Store.
const (
	EventCreated  = "context.created"
	EventUpdated  = "context.updated"
	EventFeedback = "context.feedback"
)

// EventPublisher receives store lifecycle events.
// This avoids a direct dependency on pkg/events.
type EventPublisher interface {
	PublishContextEvent(eventType, contextID string, version int)
}

// Option configures a Store.
type Option func(*Store)

// WithEvents publishes lifecycle events to p.
func WithEvents(p EventPublisher) Option {
	return func(s *Store) { s.events = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store owns identity, persistence and versioned mutation of contexts.
//
// The mutex only protects the cache map itself. Read-modify-write sequences
// on the same context id are not serialized: two concurrent Build calls on
// one id race and the last durable write wins.
type Store struct {
	backend Backend
	events  EventPublisher
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]Record
}

// NewStore creates a Store over backend. The caller owns the Store and must
// Close it.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		cache:   make(map[string]Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new context and returns its id. Identical inputs always
// produce a new record; ids share a fingerprint but never collide.
func (s *Store) Create(requirementText, domain string, metadata map[string]any) (string, error) {
	now := s.timestamp()
	base := NewContextID(requirementText, domain, now)

	id := base
	for n := 2; ; n++ {
		exists, err := s.exists(id)
		if err != nil {
			return "", err
		}
		if !exists {
			break
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	rec := Record{
		ContextID:       id,
		RequirementText: requirementText,
		Domain:          domain,
		Metadata:        metadata,
		CreatedAt:       now,
		Version:         1,
		Updates:         []Update{},
		Feedback:        []FeedbackEntry{},
	}

	if _, err := s.commit(rec); err != nil {
		return "", err
	}
	s.publish(EventCreated, rec)
	return id, nil
}

// Get returns the context for id, reading through to the backend on a cache
// miss. ok is false when the context exists in neither.
func (s *Store) Get(id string) (Record, bool, error) {
	s.mu.RLock()
	rec, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return rec.clone(), true, nil
	}

	rec, ok, err := s.backend.Load(id)
	if err != nil || !ok {
		return Record{}, false, err
	}

	s.mu.Lock()
	s.cache[id] = rec
	s.mu.Unlock()
	return rec.clone(), true, nil
}

// Build appends info to the context's update log and bumps its version.
func (s *Store) Build(id string, info map[string]any) (Record, error) {
	rec, err := s.mutate(id, func(rec *Record, now time.Time) {
		rec.Updates = append(rec.Updates, Update{
			Timestamp: now,
			Info:      info,
			Version:   rec.Version,
		})
	})
	if err != nil {
		return Record{}, err
	}
	s.publish(EventUpdated, rec)
	return rec, nil
}

// AddFeedback appends feedback to the context and bumps its version.
func (s *Store) AddFeedback(id string, feedback map[string]any) (Record, error) {
	rec, err := s.mutate(id, func(rec *Record, now time.Time) {
		rec.Feedback = append(rec.Feedback, FeedbackEntry{
			Timestamp: now,
			Feedback:  feedback,
			Processed: false,
		})
	})
	if err != nil {
		return Record{}, err
	}
	s.publish(EventFeedback, rec)
	return rec, nil
}

// List returns a summary of every durable record. Order follows the
// backend's enumeration and is not guaranteed to be chronological.
func (s *Store) List() ([]Summary, error) {
	recs, err := s.backend.List()
	if err != nil {
		return nil, err
	}
	result := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		result = append(result, rec.Summary())
	}
	return result, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// mutate is the shared append path: apply works on a copy, the version is
// incremented, and the copy is committed. On failure neither the cache nor
// the backend changes.
func (s *Store) mutate(id string, apply func(rec *Record, now time.Time)) (Record, error) {
	current, ok, err := s.Get(id)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := current.clone()
	apply(&next, s.timestamp())
	next.Version++

	saved, err := s.commit(next)
	if err != nil {
		return Record{}, err
	}
	return saved.clone(), nil
}

// commit writes rec durably and only then installs it in the cache. The
// cached copy is the JSON-decoded form, so it shares no maps with the caller
// and a cache hit returns the same value types as a backend load.
func (s *Store) commit(rec Record) (Record, error) {
	saved, err := canonical(rec)
	if err != nil {
		return Record{}, err
	}
	if err := s.backend.Save(saved); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	s.cache[saved.ContextID] = saved
	s.mu.Unlock()
	return saved, nil
}

func (s *Store) exists(id string) (bool, error) {
	s.mu.RLock()
	_, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return true, nil
	}
	_, ok, err := s.backend.Load(id)
	return ok, err
}

// timestamp strips the monotonic reading so values compare equal after a
// JSON round trip.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Round(0)
}

func (s *Store) publish(eventType string, rec Record) {
	if s.events != nil {
		s.events.PublishContextEvent(eventType, rec.ContextID, rec.Version)
	}
}
