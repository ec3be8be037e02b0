package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/dialdrop/dialdrop/pkg/core/engine"
	"github.com/dialdrop/dialdrop/pkg/telnyx"
)

// WebhookHandler receives provider call events. It always answers 200
// once the body was read: a non-2xx would make the provider re-deliver,
// and the engine already tolerates duplicates.
type WebhookHandler struct {
	Engine       *engine.Engine
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func (h WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.MaxBodyBytes))
	if err != nil {
		h.Logger.Warn("webhook body read failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]bool{"received": false})
		return
	}

	ev, err := telnyx.ParseEvent(body)
	if err != nil {
		h.Logger.Warn("webhook parse failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]bool{"received": false})
		return
	}

	h.Engine.HandleEvent(r.Context(), toEngineEvent(ev))
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func toEngineEvent(ev telnyx.Event) engine.Event {
	return engine.Event{
		Type:            ev.Type,
		CallID:          ev.CallControlID,
		To:              ev.To,
		From:            ev.From,
		Result:          ev.Result,
		HangupCause:     ev.HangupCause,
		HangupSource:    ev.HangupSource,
		RecordingURL:    ev.RecordingURL,
		TranscriptText:  ev.Transcript,
		TranscriptTrack: ev.TranscriptTrack,
		TranscriptFinal: ev.TranscriptFinal,
	}
}
