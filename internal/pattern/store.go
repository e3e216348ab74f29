package pattern

import (
	"context"
	"sort"
	"sync"
)

// UpdateFunc mutates a record inside its exclusive section. Returning an
// error discards the mutation. It may run more than once for a single
// Update when an optimistic store retries, so it must not carry state
// between calls.
type UpdateFunc func(r *Record) error

// Store persists pattern records keyed by signature.
type Store interface {
	// Get returns a snapshot of the record, or ErrNotFound.
	Get(ctx context.Context, sig string) (*Record, error)

	// List returns snapshots of all records ordered by signature.
	List(ctx context.Context) ([]*Record, error)

	// Update applies fn atomically. When create is true a missing record
	// is created first, otherwise ErrNotFound is returned. The returned
	// record is a snapshot taken after fn.
	Update(ctx context.Context, sig string, create bool, fn UpdateFunc) (*Record, error)

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, sig string) error

	// DeleteIf removes the record when match reports true for its current
	// state, evaluated inside the record's exclusive section. It reports
	// whether the record was removed.
	DeleteIf(ctx context.Context, sig string, match func(r *Record) bool) (bool, error)
}

// MemoryStore keeps records in process memory with one mutex per
// signature.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
}

type memEntry struct {
	mu      sync.Mutex
	rec     *Record
	deleted bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memEntry)}
}

func (s *MemoryStore) entry(sig string, create bool) *memEntry {
	s.mu.RLock()
	e, ok := s.entries[sig]
	s.mu.RUnlock()
	if ok || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[sig]; ok {
		return e
	}
	e = &memEntry{}
	s.entries[sig] = e
	return e
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, sig string) (*Record, error) {
	e := s.entry(sig, false)
	if e == nil {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil || e.deleted {
		return nil, ErrNotFound
	}
	return e.rec.Clone(), nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]*Record, error) {
	s.mu.RLock()
	entries := make([]*memEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.rec != nil && !e.deleted {
			out = append(out, e.rec.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signature < out[j].Signature })
	return out, nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, sig string, create bool, fn UpdateFunc) (*Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := s.entry(sig, create)
		if e == nil {
			return nil, ErrNotFound
		}

		e.mu.Lock()
		if e.deleted {
			// Lost a race with Delete; retry against the fresh entry.
			e.mu.Unlock()
			continue
		}
		var work *Record
		switch {
		case e.rec != nil:
			work = e.rec.Clone()
		case create:
			work = newRecord(sig)
		default:
			e.mu.Unlock()
			return nil, ErrNotFound
		}
		if err := fn(work); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.rec = work
		out := work.Clone()
		e.mu.Unlock()
		return out, nil
	}
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, sig string) error {
	s.mu.Lock()
	e, ok := s.entries[sig]
	delete(s.entries, sig)
	s.mu.Unlock()
	if ok {
		e.mu.Lock()
		e.deleted = true
		e.mu.Unlock()
	}
	return nil
}

// DeleteIf implements Store.
func (s *MemoryStore) DeleteIf(ctx context.Context, sig string, match func(r *Record) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sig]
	if !ok {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil || e.deleted || !match(e.rec.Clone()) {
		return false, nil
	}
	e.deleted = true
	delete(s.entries, sig)
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
