package engine

// Provider event types consumed by the engine. These mirror the Telnyx
// Call Control webhook vocabulary; the gateway maps wire envelopes into
// Event values before handing them over.
const (
	EventInitiated             = "call.initiated"
	EventAnswered              = "call.answered"
	EventMachineDetectionEnded = "call.machine.detection.ended"
	EventMachineGreetingEnded  = "call.machine.greeting.ended"
	EventPremiumGreetingEnded  = "call.machine.premium.greeting.ended"
	EventPlaybackEnded         = "call.playback.ended"
	EventTranscription         = "call.transcription"
	EventRecordingSaved        = "call.recording.saved"
	EventHangup                = "call.hangup"
)

// Machine-detection results.
const (
	AMDHuman   = "human"
	AMDMachine = "machine"
	AMDNotSure = "not_sure"
	AMDFax     = "fax"
	// AMDTimeout is not a provider value: it tags records whose
	// human-transfer decision was forced by the fallback timer.
	AMDTimeout = "timeout"
)

// BeepDetected is the greeting-ended result indicating the voicemail
// beep was explicitly heard.
const BeepDetected = "beep_detected"

// Event is one inbound provider event. Type is always set; the remaining
// fields are populated per event type.
type Event struct {
	Type   string
	CallID string

	To   string
	From string

	// Result carries the AMD verdict or the beep-detection outcome.
	Result string

	HangupCause  string
	HangupSource string

	RecordingURL string

	TranscriptText  string
	TranscriptTrack string
	TranscriptFinal bool
}

// Number returns the best destination number derivable from the event.
func (ev Event) Number() string {
	if ev.To != "" {
		return ev.To
	}
	return ev.From
}
