package telnyx

import (
	"encoding/json"
	"fmt"
)

// Event is one decoded webhook delivery, flattened from the Telnyx
// envelope to the fields the engine consumes.
type Event struct {
	Type          string
	CallControlID string

	To   string
	From string

	Result string

	HangupCause  string
	HangupSource string

	RecordingURL string

	Transcript      string
	TranscriptTrack string
	TranscriptFinal bool
}

type webhookEnvelope struct {
	Data struct {
		EventType string `json:"event_type"`
		Payload   struct {
			CallControlID string `json:"call_control_id"`
			To            string `json:"to"`
			From          string `json:"from"`
			Result        string `json:"result"`
			HangupCause   string `json:"hangup_cause"`
			HangupSource  string `json:"hangup_source"`
			RecordingURLs struct {
				MP3 string `json:"mp3"`
				WAV string `json:"wav"`
			} `json:"recording_urls"`
			TranscriptionData struct {
				Transcript string `json:"transcript"`
				Track      string `json:"transcription_track"`
				IsFinal    bool   `json:"is_final"`
			} `json:"transcription_data"`
		} `json:"payload"`
	} `json:"data"`
}

// ParseEvent decodes a webhook body. Bodies without an event type are
// rejected; unknown event types are passed through for the engine to
// ignore.
func ParseEvent(body []byte) (Event, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("decode webhook: %w", err)
	}
	if env.Data.EventType == "" {
		return Event{}, fmt.Errorf("webhook missing event_type")
	}

	p := env.Data.Payload
	ev := Event{
		Type:            env.Data.EventType,
		CallControlID:   p.CallControlID,
		To:              p.To,
		From:            p.From,
		Result:          p.Result,
		HangupCause:     p.HangupCause,
		HangupSource:    p.HangupSource,
		Transcript:      p.TranscriptionData.Transcript,
		TranscriptTrack: p.TranscriptionData.Track,
		TranscriptFinal: p.TranscriptionData.IsFinal,
	}
	switch {
	case p.RecordingURLs.MP3 != "":
		ev.RecordingURL = p.RecordingURLs.MP3
	case p.RecordingURLs.WAV != "":
		ev.RecordingURL = p.RecordingURLs.WAV
	}
	return ev, nil
}
