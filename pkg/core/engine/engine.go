// Package engine drives the per-call state machine. Every provider
// webhook event lands in HandleEvent, which advances the matching call
// record, issues provider commands (transfer, playback, hangup) and
// finalizes the record when the call ends.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dialdrop/dialdrop/pkg/core/amd"
	"github.com/dialdrop/dialdrop/pkg/core/callstate"
	"github.com/dialdrop/dialdrop/pkg/core/campaign"
	"github.com/dialdrop/dialdrop/pkg/core/gate"
)

// DefaultAMDTimeout is how long after answer the engine waits for a
// machine-detection verdict before assuming a human.
const DefaultAMDTimeout = 8 * time.Second

// Commander issues call-control commands against the telephony provider.
type Commander interface {
	Transfer(ctx context.Context, callID, to, callerID string) error
	PlayAudio(ctx context.Context, callID, audioURL string) error
	Hangup(ctx context.Context, callID string) error
	StartTranscription(ctx context.Context, callID string) error
	StartRecording(ctx context.Context, callID string) error
}

// History archives finalized call records.
type History interface {
	ArchiveCall(ctx context.Context, rec callstate.Record) error
}

// OutcomeSink observes finalized records, e.g. to auto-suppress invalid
// numbers. Optional.
type OutcomeSink interface {
	NoteOutcome(ctx context.Context, rec callstate.Record) error
}

// AudioResolver maps a destination number to a personalized voicemail
// audio URL. Optional; the campaign audio URL is the fallback.
type AudioResolver interface {
	AudioFor(number string) (string, bool)
}

// callerIDRejecter is satisfied by provider command errors caused by the
// network refusing the outbound caller-id.
type callerIDRejecter interface {
	CallerIDRejected() bool
}

func callerIDRejected(err error) bool {
	var rej callerIDRejecter
	return errors.As(err, &rej) && rej.CallerIDRejected()
}

// Config carries the engine's collaborators.
type Config struct {
	Store       *callstate.Store
	Completions *callstate.CompletionRegistry
	Gate        *gate.Gate
	Timers      *amd.Timers
	Campaign    *campaign.State
	Provider    Commander
	History     History
	Outcomes    OutcomeSink
	Audio       AudioResolver

	// FromNumber is the configured outbound caller-id, used for
	// transfers when the contact's own number is unusable.
	FromNumber string

	// AMDTimeout overrides DefaultAMDTimeout when positive.
	AMDTimeout time.Duration

	Logger *slog.Logger
}

// Engine is the per-call state machine. Safe for concurrent use.
type Engine struct {
	store       *callstate.Store
	completions *callstate.CompletionRegistry
	gate        *gate.Gate
	timers      *amd.Timers
	campaign    *campaign.State
	provider    Commander
	history     History
	outcomes    OutcomeSink
	audio       AudioResolver

	fromNumber string
	amdTimeout time.Duration
	log        *slog.Logger
}

func New(cfg Config) *Engine {
	timeout := cfg.AMDTimeout
	if timeout <= 0 {
		timeout = DefaultAMDTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:       cfg.Store,
		completions: cfg.Completions,
		gate:        cfg.Gate,
		timers:      cfg.Timers,
		campaign:    cfg.Campaign,
		provider:    cfg.Provider,
		history:     cfg.History,
		outcomes:    cfg.Outcomes,
		audio:       cfg.Audio,
		fromNumber:  cfg.FromNumber,
		amdTimeout:  timeout,
		log:         logger.With("component", "engine"),
	}
}

// HandleEvent dispatches one provider event. Unknown call ids get a
// record created on the fly, except for hangups: a hangup for an id the
// engine no longer tracks was already finalized and is dropped.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) {
	if ev.CallID == "" {
		e.log.Warn("event without call id", "type", ev.Type)
		return
	}

	rec, ok := e.store.Get(ev.CallID)
	if !ok {
		if !e.adoptUnknown(ev) {
			return
		}
		rec, _ = e.store.Get(ev.CallID)
	}

	if rec.IsTransferLeg {
		e.handleTransferLeg(ctx, ev)
		return
	}

	switch ev.Type {
	case EventInitiated:
		e.store.Update(ev.CallID, func(r *callstate.Record) {
			r.Status = callstate.StatusRinging
		})
	case EventAnswered:
		e.handleAnswered(ctx, ev)
	case EventMachineDetectionEnded:
		e.handleAMDResult(ctx, ev)
	case EventMachineGreetingEnded, EventPremiumGreetingEnded:
		e.handleGreetingEnded(ctx, ev)
	case EventPlaybackEnded:
		e.handlePlaybackEnded(ctx, ev)
	case EventTranscription:
		e.store.AppendTranscript(ev.CallID, callstate.TranscriptEntry{
			Text:  ev.TranscriptText,
			Track: ev.TranscriptTrack,
			Final: ev.TranscriptFinal,
		})
	case EventRecordingSaved:
		if ev.RecordingURL != "" {
			e.store.Update(ev.CallID, func(r *callstate.Record) {
				r.RecordingURL = ev.RecordingURL
			})
		}
	case EventHangup:
		e.handleHangup(ctx, ev)
	default:
		e.log.Debug("unhandled event type", "type", ev.Type, "call_id", ev.CallID)
	}
}

// adoptUnknown creates a record for an event whose call id the engine
// does not track. Legs dialed to the transfer number become transfer-leg
// records; hangups are never adopted so a duplicate hangup after
// finalization stays a no-op.
func (e *Engine) adoptUnknown(ev Event) bool {
	if ev.Type == EventHangup {
		e.log.Debug("hangup for untracked call", "call_id", ev.CallID, "cause", ev.HangupCause)
		return false
	}
	number := ev.Number()
	if number == "" {
		return false
	}
	if tn := e.campaign.TransferNumber(); tn != "" && ev.To == tn {
		e.store.CreateTransferLeg(ev.CallID, ev.To, ev.From)
		return true
	}
	e.store.Create(ev.CallID, number, ev.From)
	e.log.Info("adopted untracked call", "call_id", ev.CallID, "number", number, "type", ev.Type)
	return true
}

func (e *Engine) handleAnswered(ctx context.Context, ev Event) {
	rec, _ := e.store.Get(ev.CallID)
	if rec.Transferred || rec.VoicemailDropped {
		return
	}

	e.store.Update(ev.CallID, func(r *callstate.Record) {
		r.Status = callstate.StatusAnswered
		r.AMDReceived = false
		if r.RingEnd.IsZero() {
			r.RingEnd = time.Now()
		}
	})

	if err := e.provider.StartTranscription(ctx, ev.CallID); err != nil {
		e.log.Warn("start transcription failed", "call_id", ev.CallID, "error", err)
	}
	if err := e.provider.StartRecording(ctx, ev.CallID); err != nil {
		e.log.Warn("start recording failed", "call_id", ev.CallID, "error", err)
	}

	e.timers.Arm(ev.CallID, e.amdTimeout, e.amdFallback)
}

// amdFallback fires when no machine-detection verdict arrived in time.
// The call is treated as a human answer.
func (e *Engine) amdFallback(callID string) {
	rec, ok := e.store.Get(callID)
	if !ok || rec.AMDReceived || rec.Status != callstate.StatusAnswered {
		return
	}

	e.log.Info("amd timeout, assuming human", "call_id", callID, "number", rec.Number)
	machine := false
	e.store.Update(callID, func(r *callstate.Record) {
		r.AMDReceived = true
		r.MachineDetected = &machine
		r.AMDResult = AMDTimeout
		r.Status = callstate.StatusHumanDetected
	})
	e.transferHuman(context.Background(), callID)
}

func (e *Engine) handleAMDResult(ctx context.Context, ev Event) {
	e.timers.Cancel(ev.CallID)

	rec, _ := e.store.Get(ev.CallID)
	if rec.Transferred || rec.VoicemailDropped {
		return
	}

	e.log.Info("amd result", "call_id", ev.CallID, "number", rec.Number, "result", ev.Result)

	switch ev.Result {
	case AMDHuman, AMDNotSure:
		machine := false
		e.store.Update(ev.CallID, func(r *callstate.Record) {
			r.AMDReceived = true
			r.MachineDetected = &machine
			r.AMDResult = ev.Result
			r.Status = callstate.StatusHumanDetected
		})
		e.transferHuman(ctx, ev.CallID)
	case AMDMachine:
		machine := true
		e.store.Update(ev.CallID, func(r *callstate.Record) {
			r.AMDReceived = true
			r.MachineDetected = &machine
			r.AMDResult = ev.Result
			r.Status = callstate.StatusMachineDetected
		})
		e.dropVoicemail(ctx, ev.CallID)
	case AMDFax:
		e.store.Update(ev.CallID, func(r *callstate.Record) {
			r.AMDReceived = true
			r.AMDResult = ev.Result
			r.Status = callstate.StatusNoAnswer
			r.StatusDescription = "Fax machine detected"
			r.StatusColor = SeverityWarning
		})
		e.hangupQuietly(ctx, ev.CallID)
	default:
		e.store.Update(ev.CallID, func(r *callstate.Record) {
			r.AMDReceived = true
			r.AMDResult = ev.Result
			r.Status = callstate.StatusNoAnswer
		})
		e.hangupQuietly(ctx, ev.CallID)
	}
}

// transferHuman bridges a human-answered call to the transfer number.
// The transferred mark is a compare-and-set against the voicemail mark,
// so only one of the two actions can ever run for a call.
func (e *Engine) transferHuman(ctx context.Context, callID string) {
	transferTo := e.campaign.TransferNumber()
	if transferTo == "" {
		e.store.Update(callID, func(r *callstate.Record) {
			r.Status = callstate.StatusHumanNoTransfer
			r.StatusDescription = "Human answered, no transfer number configured"
			r.StatusColor = SeverityWarning
		})
		e.hangupQuietly(ctx, callID)
		return
	}

	if !e.store.MarkTransferred(callID) {
		return
	}
	rec, _ := e.store.Get(callID)

	callerID := rec.Number
	if callerID == "" {
		callerID = e.fromNumber
	}
	err := e.provider.Transfer(ctx, callID, transferTo, callerID)
	if err != nil && callerID != e.fromNumber && callerIDRejected(err) {
		e.log.Warn("caller id rejected, retrying with own number",
			"call_id", callID, "caller_id", callerID)
		err = e.provider.Transfer(ctx, callID, transferTo, e.fromNumber)
	}
	if err != nil {
		e.log.Error("transfer failed", "call_id", callID, "number", rec.Number, "error", err)
		e.store.Update(callID, func(r *callstate.Record) {
			r.Status = callstate.StatusTransferFailed
			r.StatusDescription = "Transfer command failed"
			r.StatusColor = SeverityError
		})
		e.hangupQuietly(ctx, callID)
		return
	}

	e.gate.Pin(callID)
	e.log.Info("transfer issued", "call_id", callID, "number", rec.Number, "to", transferTo)
}

// dropVoicemail starts voicemail playback on a machine-answered call.
func (e *Engine) dropVoicemail(ctx context.Context, callID string) {
	if !e.store.MarkVoicemailDropped(callID) {
		return
	}
	rec, _ := e.store.Get(callID)

	audioURL := e.audioFor(rec.Number)
	if audioURL == "" {
		e.log.Error("no voicemail audio available", "call_id", callID, "number", rec.Number)
		e.store.Update(callID, func(r *callstate.Record) {
			r.Status = callstate.StatusVoicemailFailed
			r.StatusDescription = "No voicemail audio configured"
			r.StatusColor = SeverityError
		})
		e.hangupQuietly(ctx, callID)
		return
	}

	if err := e.provider.PlayAudio(ctx, callID, audioURL); err != nil {
		e.log.Error("voicemail playback failed", "call_id", callID, "error", err)
		e.store.Update(callID, func(r *callstate.Record) {
			r.Status = callstate.StatusVoicemailFailed
			r.StatusDescription = "Voicemail playback failed"
			r.StatusColor = SeverityError
		})
		e.hangupQuietly(ctx, callID)
		return
	}
	e.log.Info("voicemail playback started", "call_id", callID, "number", rec.Number)
}

func (e *Engine) audioFor(number string) string {
	if e.audio != nil {
		if url, ok := e.audio.AudioFor(number); ok {
			return url
		}
	}
	return e.campaign.AudioURL()
}

// handleGreetingEnded restarts playback when the provider reports the
// greeting finished with an explicit beep after playback already began,
// so the message lands after the beep instead of during the greeting.
func (e *Engine) handleGreetingEnded(ctx context.Context, ev Event) {
	rec, _ := e.store.Get(ev.CallID)
	if !rec.VoicemailDropped || ev.Result != BeepDetected {
		return
	}
	audioURL := e.audioFor(rec.Number)
	if audioURL == "" {
		return
	}
	e.log.Info("beep detected, restarting voicemail", "call_id", ev.CallID)
	if err := e.provider.PlayAudio(ctx, ev.CallID, audioURL); err != nil {
		e.log.Warn("voicemail replay failed", "call_id", ev.CallID, "error", err)
	}
}

func (e *Engine) handlePlaybackEnded(ctx context.Context, ev Event) {
	rec, _ := e.store.Get(ev.CallID)
	if !rec.VoicemailDropped {
		return
	}
	e.store.Update(ev.CallID, func(r *callstate.Record) {
		r.Status = callstate.StatusVoicemailComplete
		r.StatusDescription = "Voicemail delivered"
		r.StatusColor = SeveritySuccess
	})
	e.hangupQuietly(ctx, ev.CallID)
}

func (e *Engine) handleHangup(ctx context.Context, ev Event) {
	e.timers.Cancel(ev.CallID)
	e.gate.Unpin(ev.CallID)

	now := time.Now()
	e.store.Update(ev.CallID, func(r *callstate.Record) {
		r.HangupCause = ev.HangupCause
		r.HangupSource = ev.HangupSource
		if r.RingEnd.IsZero() {
			r.RingEnd = now
		}
		switch {
		case r.Status.TerminalSuccess():
			if r.StatusDescription == "" {
				r.StatusDescription = "Call completed"
				r.StatusColor = SeveritySuccess
			}
		case r.Status.TerminalFailure():
			// keep the failure classification set earlier
		default:
			desc, severity := ClassifyHangup(ev.HangupCause, r.RingDuration(now))
			r.Status = callstate.StatusHangup
			r.StatusDescription = desc
			r.StatusColor = severity
		}
	})

	final, ok := e.store.Remove(ev.CallID)
	if !ok {
		return
	}
	e.finalize(ctx, final)
}

// finalize archives the record, releases any dialer waiting on the call
// and lets the outcome sink react. All three are best-effort.
func (e *Engine) finalize(ctx context.Context, final callstate.Record) {
	e.log.Info("call finalized",
		"call_id", final.ID,
		"number", final.Number,
		"status", string(final.Status),
		"cause", final.HangupCause)

	if e.history != nil {
		if err := e.history.ArchiveCall(ctx, final); err != nil {
			e.log.Error("archive failed", "call_id", final.ID, "error", err)
		}
	}
	e.completions.Signal(final.ID)
	if e.outcomes != nil {
		if err := e.outcomes.NoteOutcome(ctx, final); err != nil {
			e.log.Warn("outcome sink failed", "call_id", final.ID, "error", err)
		}
	}
}

// handleTransferLeg routes events for the agent-side leg of a bridged
// transfer. The leg never runs AMD or voicemail; it only flips the
// parent to connected on answer and releases the gate on hangup.
func (e *Engine) handleTransferLeg(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventAnswered:
		parent, ok := e.findTransferParent(ev)
		if !ok {
			e.log.Warn("transfer leg answered, parent unknown", "call_id", ev.CallID)
			return
		}
		e.store.Update(parent.ID, func(r *callstate.Record) {
			r.Status = callstate.StatusConnected
			r.StatusDescription = "Connected, speaking"
			r.StatusColor = SeveritySuccess
		})
		e.log.Info("transfer connected", "call_id", ev.CallID, "parent_id", parent.ID)
	case EventHangup:
		parent, ok := e.findTransferParent(ev)
		e.store.Remove(ev.CallID)
		if !ok {
			e.log.Warn("transfer leg hangup, parent unknown", "call_id", ev.CallID)
			return
		}
		e.gate.Unpin(parent.ID)
		e.completions.Signal(parent.ID)
		e.log.Info("transfer leg ended", "call_id", ev.CallID, "parent_id", parent.ID)
	default:
		// transfer legs carry no other state
	}
}

// findTransferParent locates the primary call a transfer leg belongs to.
// Legs are placed with the contact's number as caller-id, so the leg's
// From matches the parent's destination; a lone pinned call is the
// fallback.
func (e *Engine) findTransferParent(ev Event) (callstate.Record, bool) {
	if ev.From != "" {
		if rec, ok := e.store.Find(func(r callstate.Record) bool {
			return !r.IsTransferLeg && r.Transferred && r.Number == ev.From
		}); ok {
			return rec, true
		}
	}
	if pinned := e.gate.Pinned(); len(pinned) == 1 {
		return e.store.Get(pinned[0])
	}
	return callstate.Record{}, false
}

// hangupQuietly issues a hangup command and only logs failure; the
// provider's own hangup webhook finalizes the record.
func (e *Engine) hangupQuietly(ctx context.Context, callID string) {
	if err := e.provider.Hangup(ctx, callID); err != nil {
		e.log.Warn("hangup command failed", "call_id", callID, "error", err)
	}
}
