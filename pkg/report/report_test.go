package report

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dialdrop/dialdrop/pkg/storage"
)

func boolPtr(b bool) *bool { return &b }

func sampleRows() []storage.CallRow {
	return []storage.CallRow{
		{CallID: "a", Status: "connected_speaking", MachineDetected: boolPtr(false), Transferred: true, HangupCause: "normal_clearing", RingSeconds: 12},
		{CallID: "b", Status: "voicemail_complete", MachineDetected: boolPtr(true), VoicemailDropped: true, HangupCause: "normal_clearing", RingSeconds: 8},
		{CallID: "c", Status: "hangup", HangupCause: "user_busy", RingSeconds: 20},
		{CallID: "d", Status: "hangup", HangupCause: "invalid_number"},
		{CallID: "e", Status: "transfer_failed", MachineDetected: boolPtr(false), HangupCause: "normal_clearing"},
		{CallID: "leg", Status: "hangup", IsTransferLeg: true, HangupCause: "normal_clearing"},
	}
}

func TestBuildSummary(t *testing.T) {
	from := time.Now().Add(-24 * time.Hour)
	to := time.Now()
	s := BuildSummary(sampleRows(), from, to)

	if s.TotalCalls != 5 {
		t.Fatalf("TotalCalls = %d, want 5 (transfer leg excluded)", s.TotalCalls)
	}
	if s.HumansReached != 2 || s.MachinesDetected != 1 {
		t.Fatalf("humans = %d machines = %d, want 2/1", s.HumansReached, s.MachinesDetected)
	}
	if s.Transferred != 1 || s.Connected != 1 {
		t.Fatalf("transferred = %d connected = %d, want 1/1", s.Transferred, s.Connected)
	}
	if s.VoicemailsDelivered != 1 {
		t.Fatalf("voicemails = %d, want 1", s.VoicemailsDelivered)
	}
	if s.Busy != 1 || s.InvalidNumbers != 1 || s.Failed != 1 {
		t.Fatalf("busy = %d invalid = %d failed = %d, want 1/1/1", s.Busy, s.InvalidNumbers, s.Failed)
	}
	if s.ByStatus["hangup"] != 2 {
		t.Fatalf("ByStatus[hangup] = %d, want 2", s.ByStatus["hangup"])
	}
	if s.TotalRingSeconds != 40 {
		t.Fatalf("ring seconds = %v, want 40", s.TotalRingSeconds)
	}
}

func TestRenderTextIncludesCounts(t *testing.T) {
	s := BuildSummary(sampleRows(), time.Now().Add(-24*time.Hour), time.Now())
	text := RenderText(s)

	for _, want := range []string{
		"Total calls:          5",
		"Voicemails delivered: 1",
		"connected_speaking",
		"By final status:",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
}

type fakeHistory struct {
	rows []storage.CallRow
}

func (h *fakeHistory) CallsSince(_ context.Context, _ time.Time) ([]storage.CallRow, error) {
	return h.rows, nil
}

type fakeSender struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
	to       [][]string
}

func (s *fakeSender) Send(to []string, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to = append(s.to, to)
	s.subjects = append(s.subjects, subject)
	s.bodies = append(s.bodies, body)
	return nil
}

func TestRunOnceSendsReport(t *testing.T) {
	sender := &fakeSender{}
	sched := NewScheduler(&fakeHistory{rows: sampleRows()}, sender,
		[]string{"ops@example.com"}, 18, time.UTC, nil)

	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(sender.subjects) != 1 {
		t.Fatalf("sends = %d, want 1", len(sender.subjects))
	}
	if !strings.Contains(sender.subjects[0], "(5 calls)") {
		t.Fatalf("subject = %q, want call count", sender.subjects[0])
	}
	if sender.to[0][0] != "ops@example.com" {
		t.Fatalf("to = %v", sender.to[0])
	}
}

func TestUntilNextRun(t *testing.T) {
	sched := NewScheduler(&fakeHistory{}, &fakeSender{}, nil, 18, time.UTC, nil)

	sched.now = func() time.Time {
		return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	}
	if got := sched.untilNextRun(); got != 6*time.Hour {
		t.Fatalf("untilNextRun = %v, want 6h", got)
	}

	// past today's run hour: schedule for tomorrow
	sched.now = func() time.Time {
		return time.Date(2026, 8, 31, 19, 0, 0, 0, time.UTC)
	}
	if got := sched.untilNextRun(); got != 23*time.Hour {
		t.Fatalf("untilNextRun = %v, want 23h", got)
	}
}
