package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dialdrop/dialdrop/pkg/core"
	"github.com/dialdrop/dialdrop/pkg/core/callstate"
	"github.com/dialdrop/dialdrop/pkg/gateway/config"
)

// Placer originates a single outbound call.
type Placer interface {
	Dial(ctx context.Context, number string) (string, error)
}

// CallsHandler lists in-flight calls and places one-off test calls.
type CallsHandler struct {
	Config config.Config
	Placer Placer
	Store  *callstate.Store
	Logger *slog.Logger
}

func (h CallsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v1/calls":
		h.list(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/calls/test":
		h.testCall(w, r)
	default:
		methodNotAllowed(w, r)
	}
}

type callView struct {
	CallID            string  `json:"call_id"`
	Number            string  `json:"number"`
	Status            string  `json:"status"`
	StatusDescription string  `json:"status_description,omitempty"`
	StatusColor       string  `json:"status_color,omitempty"`
	AMDResult         string  `json:"amd_result,omitempty"`
	Transferred       bool    `json:"transferred"`
	VoicemailDropped  bool    `json:"voicemail_dropped"`
	IsTransferLeg     bool    `json:"is_transfer_leg"`
	RingSeconds       float64 `json:"ring_seconds"`
}

func (h CallsHandler) list(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	records := h.Store.List()
	views := make([]callView, 0, len(records))
	for _, rec := range records {
		views = append(views, callView{
			CallID:            rec.ID,
			Number:            rec.Number,
			Status:            string(rec.Status),
			StatusDescription: rec.StatusDescription,
			StatusColor:       rec.StatusColor,
			AMDResult:         rec.AMDResult,
			Transferred:       rec.Transferred,
			VoicemailDropped:  rec.VoicemailDropped,
			IsTransferLeg:     rec.IsTransferLeg,
			RingSeconds:       rec.RingDuration(now).Seconds(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": views})
}

func (h CallsHandler) testCall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Number string `json:"number"`
	}
	if err := decodeJSON(r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Number == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("number is required", "number"))
		return
	}

	callID, err := h.Placer.Dial(r.Context(), req.Number)
	if err != nil {
		h.Logger.Error("test call failed", "number", req.Number, "error", err)
		writeError(w, r, core.NewProviderError("telnyx", err))
		return
	}
	h.Store.Create(callID, req.Number, h.Config.FromNumber)
	h.Store.Update(callID, func(rec *callstate.Record) {
		rec.Status = callstate.StatusTestRinging
	})
	h.Logger.Info("test call placed", "call_id", callID, "number", req.Number)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"call_id": callID,
		"number":  req.Number,
	})
}
