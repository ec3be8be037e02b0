package campaign

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		AudioURL:       "https://example.com/audio.mp3",
		TransferNumber: "+15559999999",
		Numbers:        []string{"+15551234567"},
		Mode:           PacingSequential,
		CallDelay:      time.Minute,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid sequential", func(c *Config) {}, false},
		{"valid simultaneous", func(c *Config) {
			c.Mode = PacingSimultaneous
			c.BatchSize = 3
			c.CallDelay = 0
		}, false},
		{"no numbers", func(c *Config) { c.Numbers = nil }, true},
		{"missing mode", func(c *Config) { c.Mode = "" }, true},
		{"unknown mode", func(c *Config) { c.Mode = "burst" }, true},
		{"simultaneous without batch size", func(c *Config) {
			c.Mode = PacingSimultaneous
			c.BatchSize = 0
		}, true},
		{"sequential delay too short", func(c *Config) { c.CallDelay = 10 * time.Second }, true},
		{"sequential delay too long", func(c *Config) { c.CallDelay = 11 * time.Minute }, true},
		{"empty transfer number allowed", func(c *Config) { c.TransferNumber = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestState_StartAssignsID(t *testing.T) {
	s := NewState()
	if err := s.Start(validConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Snapshot().ID == "" {
		t.Fatalf("campaign id not assigned")
	}
	if !s.Active() {
		t.Fatalf("campaign not active after Start")
	}
}

func TestState_StopImpliesInactive(t *testing.T) {
	s := NewState()
	if err := s.Start(validConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.RequestStop()
	if s.Active() {
		t.Fatalf("active=true after stop requested")
	}
	p := s.Progress()
	if !p.StopRequested || p.Active {
		t.Fatalf("progress=%+v, want stop_requested and inactive", p)
	}
}

func TestState_StartResetsCounters(t *testing.T) {
	s := NewState()
	if err := s.Start(validConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.AdvanceDialed()
	s.AdvanceDialed()
	s.RequestStop()

	if err := s.Start(validConfig()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if got := s.Dialed(); got != 0 {
		t.Fatalf("dialed=%d after restart, want 0", got)
	}
	if s.StopRequested() {
		t.Fatalf("stop flag survived restart")
	}
}

func TestState_SnapshotIsolation(t *testing.T) {
	s := NewState()
	if err := s.Start(validConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := s.Snapshot()
	snap.Numbers[0] = "+15550000000"

	if s.Snapshot().Numbers[0] != "+15551234567" {
		t.Fatalf("campaign numbers mutated through snapshot")
	}
}

func TestState_AdvanceDialed(t *testing.T) {
	s := NewState()
	if err := s.Start(validConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.AdvanceDialed(); got != 1 {
		t.Fatalf("AdvanceDialed=%d, want 1", got)
	}
	if got := s.AdvanceDialed(); got != 2 {
		t.Fatalf("AdvanceDialed=%d, want 2", got)
	}
}
