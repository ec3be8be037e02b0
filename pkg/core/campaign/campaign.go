// Package campaign holds the process-wide campaign state: the active
// batch of numbers, pacing configuration, and progress counters.
package campaign

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// PacingMode selects how the dialer advances the queue.
type PacingMode string

const (
	// PacingSequential places one call at a time, waiting for each call
	// to conclude plus a configured delay before the next.
	PacingSequential PacingMode = "sequential"
	// PacingSimultaneous places fixed-size batches of calls concurrently.
	PacingSimultaneous PacingMode = "simultaneous"
)

// Config describes one campaign. It is replaced wholesale on Start and
// the dialer reads an immutable snapshot taken at loop start.
type Config struct {
	ID             string
	AudioURL       string
	TransferNumber string
	Numbers        []string
	Mode           PacingMode
	BatchSize      int
	CallDelay      time.Duration
}

// Validate checks the parts of the config the engine depends on. The
// transfer number is allowed to be empty: machine-only campaigns drop
// voicemail and never transfer.
func (c Config) Validate() error {
	if len(c.Numbers) == 0 {
		return fmt.Errorf("campaign has no numbers")
	}
	switch c.Mode {
	case PacingSequential, PacingSimultaneous:
	case "":
		return fmt.Errorf("pacing mode is required")
	default:
		return fmt.Errorf("unknown pacing mode %q", c.Mode)
	}
	if c.Mode == PacingSimultaneous && c.BatchSize <= 0 {
		return fmt.Errorf("simultaneous pacing requires batch size > 0")
	}
	if c.Mode == PacingSequential {
		if c.CallDelay < time.Minute || c.CallDelay > 10*time.Minute {
			return fmt.Errorf("sequential call delay must be between 1m and 10m, got %s", c.CallDelay)
		}
	}
	return nil
}

// State is the one process-wide campaign instance.
type State struct {
	mu            sync.Mutex
	cfg           Config
	active        bool
	stopRequested bool
	dialed        int64
	startedAt     time.Time
}

// NewState returns an inactive campaign holder.
func NewState() *State {
	return &State{}
}

// Start replaces the campaign wholesale: config swapped, dialed counter
// reset, stop flag cleared. A missing id is assigned.
func (s *State) Start(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.ID) == "" {
		cfg.ID = "cmp_" + ulid.MustNew(ulid.Now(), rand.Reader).String()
	}
	cfg.Numbers = append([]string(nil), cfg.Numbers...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.active = true
	s.stopRequested = false
	s.dialed = 0
	s.startedAt = time.Now()
	return nil
}

// RequestStop flags the campaign for cooperative shutdown. The dial loop
// observes it at its next checkpoint. stop_requested implies inactive.
func (s *State) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRequested = true
	s.active = false
}

// MarkComplete marks the campaign inactive after the queue is exhausted.
func (s *State) MarkComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

// Active reports whether the dialer should keep advancing the queue.
func (s *State) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && !s.stopRequested
}

// StopRequested reports whether a stop was requested.
func (s *State) StopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

// Snapshot returns a copy of the current config, including a copied
// number list, safe to iterate without holding any lock.
func (s *State) Snapshot() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	cfg.Numbers = append([]string(nil), s.cfg.Numbers...)
	return cfg
}

// TransferNumber returns the configured live-agent destination.
func (s *State) TransferNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.TransferNumber
}

// AudioURL returns the campaign default voicemail audio.
func (s *State) AudioURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.AudioURL
}

// AdvanceDialed increments the dialed counter and returns the new value.
// DNC-suppressed numbers advance it too so progress reflects queue
// position, not placements.
func (s *State) AdvanceDialed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialed++
	return s.dialed
}

// Dialed returns the dialed counter.
func (s *State) Dialed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialed
}

// Progress is the aggregate view exposed by the status surface.
type Progress struct {
	ID            string    `json:"campaign_id"`
	Active        bool      `json:"active"`
	StopRequested bool      `json:"stop_requested"`
	Dialed        int64     `json:"dialed"`
	Total         int       `json:"total"`
	Mode          string    `json:"mode"`
	StartedAt     time.Time `json:"started_at,omitzero"`
}

// Progress returns the aggregate campaign view.
func (s *State) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Progress{
		ID:            s.cfg.ID,
		Active:        s.active,
		StopRequested: s.stopRequested,
		Dialed:        s.dialed,
		Total:         len(s.cfg.Numbers),
		Mode:          string(s.cfg.Mode),
		StartedAt:     s.startedAt,
	}
}
