package callstate

import (
	"sort"
	"sync"
	"time"
)

// Store is the race-safe map of live call records. The record count is
// small (tens of concurrent calls), so one mutex over the whole map keeps
// markTransferred/markVoicemailDropped linearized per id without per-record
// locking.
type Store struct {
	mu    sync.Mutex
	calls map[string]*Record
	now   func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		calls: make(map[string]*Record),
		now:   time.Now,
	}
}

// NewStoreWithClock creates a store with an injected clock for tests.
func NewStoreWithClock(now func() time.Time) *Store {
	s := NewStore()
	if now != nil {
		s.now = now
	}
	return s
}

// Create inserts a record in status "initiated" with ring start set to now.
// It is idempotent: if the id already exists (an event raced the placement)
// the existing record is left untouched and Create returns false.
func (s *Store) Create(id, number, from string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[id]; ok {
		return false
	}
	now := s.now()
	s.calls[id] = &Record{
		ID:        id,
		Number:    number,
		From:      from,
		Status:    StatusInitiated,
		CreatedAt: now,
		RingStart: now,
	}
	return true
}

// CreateTransferLeg inserts a record flagged as a transfer leg. Transfer
// legs bypass the primary state machine; the flag keeps the event handler
// from routing their events through it.
func (s *Store) CreateTransferLeg(id, number, from string) bool {
	if !s.Create(id, number, from) {
		return false
	}
	s.Update(id, func(r *Record) {
		r.IsTransferLeg = true
	})
	return true
}

// Get returns a snapshot of the record, if present.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.calls[id]
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

// Update applies fn to the record under the store lock. It returns false
// if the id is absent. fn must not block or call back into the store.
func (s *Store) Update(id string, fn func(*Record)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.calls[id]
	if !ok {
		return false
	}
	fn(r)
	return true
}

// MarkTransferred atomically claims the transfer side effect. It succeeds
// at most once per call and never succeeds after voicemail has been
// dropped; the caller must only issue the provider transfer command when
// it won this race.
func (s *Store) MarkTransferred(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.calls[id]
	if !ok || r.Transferred || r.VoicemailDropped {
		return false
	}
	r.Transferred = true
	r.Status = StatusTransferred
	return true
}

// MarkVoicemailDropped atomically claims the voicemail side effect,
// mutually exclusive with MarkTransferred.
func (s *Store) MarkVoicemailDropped(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.calls[id]
	if !ok || r.VoicemailDropped || r.Transferred {
		return false
	}
	r.VoicemailDropped = true
	r.Status = StatusVoicemailPlaying
	return true
}

// AppendTranscript adds one transcript fragment; it never changes status.
func (s *Store) AppendTranscript(id string, entry TranscriptEntry) bool {
	return s.Update(id, func(r *Record) {
		r.Transcript = append(r.Transcript, entry)
	})
}

// Remove evicts the record and returns its final snapshot. A second Remove
// for the same id returns false, which is what makes duplicate hangup
// events idempotent for archival.
func (s *Store) Remove(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.calls[id]
	if !ok {
		return Record{}, false
	}
	delete(s.calls, id)
	return r.clone(), true
}

// List returns snapshots of all live records ordered by creation time.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.calls))
	for _, r := range s.calls {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Stale returns non-terminal records created more than olderThan ago.
// There is no recovery path for a missing hangup event; this exists so the
// status surface can make stuck records visible to an operator.
func (s *Store) Stale(olderThan time.Duration) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-olderThan)
	var out []Record
	for _, r := range s.calls {
		if r.CreatedAt.After(cutoff) {
			continue
		}
		if r.Status.TerminalSuccess() || r.Status == StatusHangup {
			continue
		}
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Reset drops all live records. Used when a campaign replaces the previous
// one wholesale.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]*Record)
}

// Find returns the first record matching the predicate. Used to associate
// a transfer leg with its parent by caller-id.
func (s *Store) Find(match func(Record) bool) (Record, bool) {
	for _, r := range s.List() {
		if match(r) {
			return r, true
		}
	}
	return Record{}, false
}
