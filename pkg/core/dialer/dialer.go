// Package dialer works through the campaign's number queue, placing
// calls at the configured pace and yielding to the transfer gate while
// an agent bridge is live.
package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dialdrop/dialdrop/pkg/core/callstate"
	"github.com/dialdrop/dialdrop/pkg/core/campaign"
	"github.com/dialdrop/dialdrop/pkg/core/gate"
)

// Pacing defaults. Each is overridable through Config for tests.
const (
	DefaultGateWaitMax       = time.Hour
	DefaultCompletionWaitMax = 120 * time.Second
	DefaultBatchStagger      = 300 * time.Millisecond
	DefaultInterBatchPause   = 2 * time.Second
)

// Placer originates one outbound call and returns the provider call id.
type Placer interface {
	Dial(ctx context.Context, number string) (string, error)
}

// DNC answers whether a number is suppressed and must not be dialed.
type DNC interface {
	Suppressed(ctx context.Context, number string) (bool, error)
}

// Config carries the dialer's collaborators and pacing overrides.
type Config struct {
	Placer      Placer
	DNC         DNC
	Store       *callstate.Store
	Completions *callstate.CompletionRegistry
	Gate        *gate.Gate
	Campaign    *campaign.State

	// FromNumber is recorded on call records placed by this dialer.
	FromNumber string

	GateWaitMax       time.Duration
	CompletionWaitMax time.Duration
	BatchStagger      time.Duration
	InterBatchPause   time.Duration

	Logger *slog.Logger
}

// Dialer runs at most one campaign loop at a time.
type Dialer struct {
	placer      Placer
	dnc         DNC
	store       *callstate.Store
	completions *callstate.CompletionRegistry
	gate        *gate.Gate
	campaign    *campaign.State
	fromNumber  string

	gateWaitMax       time.Duration
	completionWaitMax time.Duration
	batchStagger      time.Duration
	interBatchPause   time.Duration

	log *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg Config) *Dialer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dialer{
		placer:            cfg.Placer,
		dnc:               cfg.DNC,
		store:             cfg.Store,
		completions:       cfg.Completions,
		gate:              cfg.Gate,
		campaign:          cfg.Campaign,
		fromNumber:        cfg.FromNumber,
		gateWaitMax:       cfg.GateWaitMax,
		completionWaitMax: cfg.CompletionWaitMax,
		batchStagger:      cfg.BatchStagger,
		interBatchPause:   cfg.InterBatchPause,
		log:               logger.With("component", "dialer"),
	}
	if d.gateWaitMax <= 0 {
		d.gateWaitMax = DefaultGateWaitMax
	}
	if d.completionWaitMax <= 0 {
		d.completionWaitMax = DefaultCompletionWaitMax
	}
	if d.batchStagger < 0 {
		d.batchStagger = DefaultBatchStagger
	}
	if d.interBatchPause < 0 {
		d.interBatchPause = DefaultInterBatchPause
	}
	return d
}

// Start launches the dialing loop for the campaign already loaded into
// the campaign state. It fails if a loop is still running.
func (d *Dialer) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("dialer already running")
	}

	cfg := d.campaign.Snapshot()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("campaign config: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.running = true
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.run(runCtx, cfg)
	return nil
}

// Stop cancels the running loop, asks the campaign to halt and forces
// the gate open so nothing stays parked. Safe to call when idle.
func (d *Dialer) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()

	d.campaign.RequestStop()
	if cancel != nil {
		cancel()
	}
	d.gate.ForceOpen()
}

// Running reports whether a dialing loop is active.
func (d *Dialer) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Done returns a channel closed when the current loop exits, or nil if
// no loop was ever started.
func (d *Dialer) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func (d *Dialer) run(ctx context.Context, cfg campaign.Config) {
	defer func() {
		d.mu.Lock()
		d.running = false
		d.cancel = nil
		done := d.done
		d.mu.Unlock()
		d.campaign.MarkComplete()
		close(done)
	}()

	d.log.Info("campaign started",
		"campaign_id", cfg.ID,
		"numbers", len(cfg.Numbers),
		"mode", string(cfg.Mode))

	switch cfg.Mode {
	case campaign.PacingSimultaneous:
		d.runBatches(ctx, cfg)
	default:
		d.runSequential(ctx, cfg)
	}

	d.log.Info("campaign finished",
		"campaign_id", cfg.ID,
		"dialed", d.campaign.Dialed())
}

func (d *Dialer) runSequential(ctx context.Context, cfg campaign.Config) {
	for _, number := range cfg.Numbers {
		if d.stopped(ctx) {
			return
		}
		if err := d.waitGate(ctx); err != nil {
			return
		}
		if d.stopped(ctx) {
			return
		}

		d.dialOne(ctx, number, true)

		if cfg.CallDelay > 0 && !d.stopped(ctx) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.CallDelay):
			}
		}
	}
}

func (d *Dialer) runBatches(ctx context.Context, cfg campaign.Config) {
	numbers := cfg.Numbers
	for start := 0; start < len(numbers); start += cfg.BatchSize {
		if d.stopped(ctx) {
			return
		}
		if err := d.waitGate(ctx); err != nil {
			return
		}
		if d.stopped(ctx) {
			return
		}

		end := start + cfg.BatchSize
		if end > len(numbers) {
			end = len(numbers)
		}
		batch := numbers[start:end]
		d.log.Info("dialing batch", "campaign_id", cfg.ID, "size", len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, number := range batch {
			if i > 0 && d.batchStagger > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(d.batchStagger):
				}
				if ctx.Err() != nil {
					break
				}
			}
			number := number
			g.Go(func() error {
				d.dialOne(gctx, number, true)
				return nil
			})
		}
		_ = g.Wait()

		if end < len(numbers) && d.interBatchPause > 0 && !d.stopped(ctx) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.interBatchPause):
			}
		}
	}
}

// dialOne suppression-checks, places and optionally waits out one call.
// Skipped and failed placements still advance the dialed counter so
// progress reflects queue position.
func (d *Dialer) dialOne(ctx context.Context, number string, waitForEnd bool) {
	if d.dnc != nil {
		suppressed, err := d.dnc.Suppressed(ctx, number)
		if err != nil {
			d.log.Warn("dnc lookup failed", "number", number, "error", err)
		} else if suppressed {
			d.log.Info("skipping suppressed number", "number", number)
			d.campaign.AdvanceDialed()
			return
		}
	}

	callID, err := d.placer.Dial(ctx, number)
	d.campaign.AdvanceDialed()
	if err != nil {
		d.log.Error("dial failed", "number", number, "error", err)
		return
	}

	d.store.Create(callID, number, d.fromNumber)
	d.log.Info("call placed", "call_id", callID, "number", number)

	if !waitForEnd {
		return
	}
	done := d.completions.Register(callID)
	if _, ok := d.store.Get(callID); !ok {
		// already finalized before we registered
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(d.completionWaitMax):
		d.log.Warn("call completion wait timed out", "call_id", callID, "number", number)
	}
}

// waitGate blocks while a live transfer holds the gate closed. The wait
// is bounded; a gate stuck past the bound is forced open rather than
// stalling the campaign forever.
func (d *Dialer) waitGate(ctx context.Context) error {
	if !d.gate.IsClosed() {
		return nil
	}
	d.log.Info("dialing paused for live transfer", "pinned", d.gate.Pinned())

	wctx, cancel := context.WithTimeout(ctx, d.gateWaitMax)
	defer cancel()
	if err := d.gate.Wait(wctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.log.Warn("gate wait exceeded bound, forcing open")
		d.gate.ForceOpen()
	}
	d.log.Info("dialing resumed")
	return nil
}

func (d *Dialer) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || !d.campaign.Active()
}
