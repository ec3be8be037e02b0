package dialer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dialdrop/dialdrop/pkg/core/callstate"
	"github.com/dialdrop/dialdrop/pkg/core/campaign"
	"github.com/dialdrop/dialdrop/pkg/core/gate"
)

type fakePlacer struct {
	mu     sync.Mutex
	seq    int
	dialed []string
	errFor map[string]error
}

func (p *fakePlacer) Dial(_ context.Context, number string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.errFor[number]; ok {
		return "", err
	}
	p.seq++
	p.dialed = append(p.dialed, number)
	return fmt.Sprintf("call-%d", p.seq), nil
}

func (p *fakePlacer) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.dialed...)
}

type fakeDNC struct {
	suppressed map[string]bool
}

func (d *fakeDNC) Suppressed(_ context.Context, number string) (bool, error) {
	return d.suppressed[number], nil
}

type testRig struct {
	dialer   *Dialer
	placer   *fakePlacer
	store    *callstate.Store
	comps    *callstate.CompletionRegistry
	gate     *gate.Gate
	campaign *campaign.State
}

func newTestRig(t *testing.T, cfg campaign.Config, mutate ...func(*Config)) *testRig {
	t.Helper()
	st := campaign.NewState()
	if err := st.Start(cfg); err != nil {
		t.Fatalf("start campaign: %v", err)
	}
	rig := &testRig{
		placer:   &fakePlacer{},
		store:    callstate.NewStore(),
		comps:    callstate.NewCompletionRegistry(),
		gate:     gate.New(),
		campaign: st,
	}
	dcfg := Config{
		Placer:            rig.placer,
		Store:             rig.store,
		Completions:       rig.comps,
		Gate:              rig.gate,
		Campaign:          st,
		FromNumber:        "+15550000001",
		CompletionWaitMax: 50 * time.Millisecond,
		BatchStagger:      time.Millisecond,
		InterBatchPause:   time.Millisecond,
	}
	for _, fn := range mutate {
		fn(&dcfg)
	}
	rig.dialer = New(dcfg)
	return rig
}

func (rig *testRig) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-rig.dialer.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("dialer loop did not finish")
	}
}

// finishCalls signals completion for every placed call shortly after it
// is created, standing in for the engine's hangup path.
func (rig *testRig) finishCalls(stop <-chan struct{}) {
	seen := map[string]bool{}
	for {
		select {
		case <-stop:
			return
		case <-time.After(2 * time.Millisecond):
		}
		for _, rec := range rig.store.List() {
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			rig.store.Remove(rec.ID)
			rig.comps.Signal(rec.ID)
		}
	}
}

func simultaneousCfg(numbers []string, batch int) campaign.Config {
	return campaign.Config{
		Numbers:   numbers,
		Mode:      campaign.PacingSimultaneous,
		BatchSize: batch,
		AudioURL:  "https://cdn.example.com/vm.mp3",
	}
}

func TestBatchesCoverWholeQueue(t *testing.T) {
	numbers := []string{"+1", "+2", "+3", "+4", "+5", "+6", "+7"}
	rig := newTestRig(t, simultaneousCfg(numbers, 3))

	stop := make(chan struct{})
	go rig.finishCalls(stop)
	defer close(stop)

	if err := rig.dialer.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rig.waitDone(t)

	if got := len(rig.placer.calls()); got != 7 {
		t.Fatalf("placed calls = %d, want 7", got)
	}
	if got := rig.campaign.Dialed(); got != 7 {
		t.Fatalf("dialed counter = %d, want 7", got)
	}
	if rig.campaign.Active() {
		t.Fatal("campaign still active after completion")
	}
}

func TestSuppressedNumbersSkippedButCounted(t *testing.T) {
	numbers := []string{"+1", "+2", "+3"}
	rig := newTestRig(t, simultaneousCfg(numbers, 3), func(c *Config) {
		c.DNC = &fakeDNC{suppressed: map[string]bool{"+2": true}}
	})

	stop := make(chan struct{})
	go rig.finishCalls(stop)
	defer close(stop)

	if err := rig.dialer.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rig.waitDone(t)

	calls := rig.placer.calls()
	if len(calls) != 2 {
		t.Fatalf("placed calls = %v, want 2", calls)
	}
	for _, n := range calls {
		if n == "+2" {
			t.Fatal("suppressed number was dialed")
		}
	}
	if got := rig.campaign.Dialed(); got != 3 {
		t.Fatalf("dialed counter = %d, want 3 (skip still advances)", got)
	}
}

func TestDialErrorDoesNotStopCampaign(t *testing.T) {
	numbers := []string{"+1", "+2", "+3"}
	rig := newTestRig(t, simultaneousCfg(numbers, 3))
	rig.placer.errFor = map[string]error{"+2": errors.New("carrier rejected")}

	stop := make(chan struct{})
	go rig.finishCalls(stop)
	defer close(stop)

	if err := rig.dialer.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rig.waitDone(t)

	if got := len(rig.placer.calls()); got != 2 {
		t.Fatalf("placed calls = %d, want 2", got)
	}
	if got := rig.campaign.Dialed(); got != 3 {
		t.Fatalf("dialed counter = %d, want 3", got)
	}
}

func TestClosedGatePausesDialing(t *testing.T) {
	numbers := []string{"+1", "+2"}
	rig := newTestRig(t, simultaneousCfg(numbers, 1))
	rig.gate.Pin("live-transfer")

	stop := make(chan struct{})
	go rig.finishCalls(stop)
	defer close(stop)

	if err := rig.dialer.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := len(rig.placer.calls()); got != 0 {
		t.Fatalf("placed calls = %d while gate closed, want 0", got)
	}

	rig.gate.Unpin("live-transfer")
	rig.waitDone(t)
	if got := len(rig.placer.calls()); got != 2 {
		t.Fatalf("placed calls = %d after gate opened, want 2", got)
	}
}

func TestSequentialWaitsBetweenCalls(t *testing.T) {
	numbers := []string{"+1", "+2", "+3"}
	rig := newTestRig(t, campaign.Config{
		Numbers:   numbers,
		Mode:      campaign.PacingSequential,
		CallDelay: time.Minute,
		AudioURL:  "https://cdn.example.com/vm.mp3",
	}, func(c *Config) {
		c.CompletionWaitMax = 20 * time.Millisecond
	})

	// never signal completions: each call must time out before the next,
	// and the minute delay keeps the second dial out of reach
	if err := rig.dialer.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if got := len(rig.placer.calls()); got != 1 {
		t.Fatalf("placed calls = %d during delay window, want 1", got)
	}
	rig.dialer.Stop()
	rig.waitDone(t)
}

func TestStopHaltsLoopAndReopensGate(t *testing.T) {
	numbers := make([]string, 50)
	for i := range numbers {
		numbers[i] = fmt.Sprintf("+1555%04d", i)
	}
	rig := newTestRig(t, simultaneousCfg(numbers, 1), func(c *Config) {
		c.CompletionWaitMax = 10 * time.Millisecond
		c.InterBatchPause = 10 * time.Millisecond
	})
	rig.gate.Pin("live-transfer")

	if err := rig.dialer.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	rig.dialer.Stop()
	rig.waitDone(t)

	if rig.gate.IsClosed() {
		t.Fatal("gate still closed after Stop")
	}
	if rig.campaign.Active() {
		t.Fatal("campaign still active after Stop")
	}
	if rig.dialer.Running() {
		t.Fatal("dialer still running after Stop")
	}
}

func TestStartTwiceFails(t *testing.T) {
	rig := newTestRig(t, simultaneousCfg([]string{"+1"}, 1), func(c *Config) {
		c.CompletionWaitMax = 100 * time.Millisecond
	})
	if err := rig.dialer.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := rig.dialer.Start(context.Background()); err == nil {
		t.Fatal("second Start succeeded, want error")
	}
	rig.dialer.Stop()
	rig.waitDone(t)
}

func TestRecordsCreatedForPlacedCalls(t *testing.T) {
	rig := newTestRig(t, simultaneousCfg([]string{"+1"}, 1), func(c *Config) {
		c.CompletionWaitMax = 5 * time.Millisecond
	})
	if err := rig.dialer.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rig.waitDone(t)

	rec, ok := rig.store.Get("call-1")
	if !ok {
		t.Fatal("no record for placed call")
	}
	if rec.Number != "+1" || rec.From != "+15550000001" {
		t.Fatalf("record = %s from %s, want +1 from +15550000001", rec.Number, rec.From)
	}
	if rec.Status != callstate.StatusInitiated {
		t.Fatalf("status = %s, want %s", rec.Status, callstate.StatusInitiated)
	}
}
