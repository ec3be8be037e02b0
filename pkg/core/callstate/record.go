// Package callstate tracks per-call records for the orchestration engine.
//
// Records are keyed by the provider-assigned call control id. All mutation
// goes through a single mutex owned by the Store; callers only ever see
// value copies, so a snapshot can be inspected without holding the lock.
package callstate

import "time"

// Status is the lifecycle state of a primary call.
type Status string

const (
	StatusInitiated         Status = "initiated"
	StatusRinging           Status = "ringing"
	StatusAnswered          Status = "answered"
	StatusHumanDetected     Status = "human_detected"
	StatusMachineDetected   Status = "machine_detected"
	StatusNoAnswer          Status = "no_answer"
	StatusTransferred       Status = "transferred"
	StatusConnected         Status = "connected_speaking"
	StatusVoicemailPlaying  Status = "voicemail_playing"
	StatusVoicemailComplete Status = "voicemail_complete"
	StatusTransferFailed    Status = "transfer_failed"
	StatusHumanNoTransfer   Status = "human_no_transfer"
	StatusVoicemailFailed   Status = "voicemail_failed"
	StatusTestRinging       Status = "test_call_ringing"
	StatusHangup            Status = "hangup"
)

// TerminalSuccess reports whether s is a terminal state the hangup
// classifier must not overwrite.
func (s Status) TerminalSuccess() bool {
	switch s {
	case StatusTransferred, StatusConnected, StatusVoicemailComplete:
		return true
	}
	return false
}

// TerminalFailure reports whether s is a terminal failure assigned by the
// engine before the hangup event arrived.
func (s Status) TerminalFailure() bool {
	switch s {
	case StatusTransferFailed, StatusHumanNoTransfer, StatusVoicemailFailed:
		return true
	}
	return false
}

// TranscriptEntry is one ordered fragment of live transcription.
type TranscriptEntry struct {
	Text  string `json:"text"`
	Track string `json:"track"`
	Final bool   `json:"final"`
}

// Record is the full per-call state. The Store hands out value copies;
// never retain a pointer into the Store's map.
type Record struct {
	ID     string `json:"call_id"`
	Number string `json:"number"`
	From   string `json:"from_number"`

	Status            Status `json:"status"`
	StatusDescription string `json:"status_description,omitempty"`
	StatusColor       string `json:"status_color,omitempty"`

	// MachineDetected is tri-state: nil until an AMD result lands.
	MachineDetected  *bool `json:"machine_detected"`
	Transferred      bool  `json:"transferred"`
	VoicemailDropped bool  `json:"voicemail_dropped"`
	AMDReceived      bool  `json:"amd_received"`

	// AMDResult records the provider verdict, or "timeout" when the
	// fallback timer forced the decision.
	AMDResult string `json:"amd_result,omitempty"`

	HangupCause  string `json:"hangup_cause,omitempty"`
	HangupSource string `json:"hangup_source,omitempty"`
	RecordingURL string `json:"recording_url,omitempty"`

	Transcript []TranscriptEntry `json:"transcript,omitempty"`

	IsTransferLeg bool `json:"is_transfer_leg,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	RingStart time.Time `json:"ring_start"`
	RingEnd   time.Time `json:"ring_end"`
}

// RingDuration returns how long the call rang, using now for calls that
// have not reached ring end yet.
func (r Record) RingDuration(now time.Time) time.Duration {
	if r.RingStart.IsZero() {
		return 0
	}
	end := r.RingEnd
	if end.IsZero() {
		end = now
	}
	if end.Before(r.RingStart) {
		return 0
	}
	return end.Sub(r.RingStart)
}

func (r Record) clone() Record {
	out := r
	if r.MachineDetected != nil {
		v := *r.MachineDetected
		out.MachineDetected = &v
	}
	if len(r.Transcript) > 0 {
		out.Transcript = append([]TranscriptEntry(nil), r.Transcript...)
	}
	return out
}
