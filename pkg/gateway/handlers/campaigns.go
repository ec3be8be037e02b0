package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dialdrop/dialdrop/pkg/core"
	"github.com/dialdrop/dialdrop/pkg/core/callstate"
	"github.com/dialdrop/dialdrop/pkg/core/campaign"
	"github.com/dialdrop/dialdrop/pkg/core/dialer"
	"github.com/dialdrop/dialdrop/pkg/core/gate"
	"github.com/dialdrop/dialdrop/pkg/gateway/config"
)

type startCampaignRequest struct {
	Numbers          []string `json:"numbers"`
	Mode             string   `json:"mode"`
	BatchSize        int      `json:"batch_size"`
	CallDelaySeconds int      `json:"call_delay_seconds"`
	TransferNumber   string   `json:"transfer_number"`
	AudioURL         string   `json:"audio_url"`
}

// CampaignHandler starts and stops dialing campaigns and reports their
// progress.
type CampaignHandler struct {
	Config   config.Config
	Dialer   *dialer.Dialer
	Campaign *campaign.State
	Store    *callstate.Store
	Gate     *gate.Gate
	Logger   *slog.Logger
}

func (h CampaignHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/campaigns":
		h.start(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/campaigns/stop":
		h.stop(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/campaigns/status":
		h.status(w, r)
	default:
		methodNotAllowed(w, r)
	}
}

func (h CampaignHandler) start(w http.ResponseWriter, r *http.Request) {
	var req startCampaignRequest
	if err := decodeJSON(r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}

	mode := campaign.PacingMode(req.Mode)
	if mode == "" {
		mode = campaign.PacingSequential
	}
	transferNumber := req.TransferNumber
	if transferNumber == "" {
		transferNumber = h.Config.TransferNumber
	}
	delay := time.Duration(req.CallDelaySeconds) * time.Second
	if delay == 0 {
		delay = 2 * time.Minute
	}

	cfg := campaign.Config{
		Numbers:        req.Numbers,
		Mode:           mode,
		BatchSize:      req.BatchSize,
		CallDelay:      delay,
		TransferNumber: transferNumber,
		AudioURL:       req.AudioURL,
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, r, core.NewInvalidRequestError(err.Error()))
		return
	}
	if h.Dialer.Running() {
		writeError(w, r, core.NewConflictError("a campaign is already running"))
		return
	}
	if err := h.Campaign.Start(cfg); err != nil {
		writeError(w, r, core.NewInvalidRequestError(err.Error()))
		return
	}
	if err := h.Dialer.Start(context.Background()); err != nil {
		writeError(w, r, core.NewConflictError(err.Error()))
		return
	}

	snap := h.Campaign.Snapshot()
	h.Logger.Info("campaign accepted",
		"campaign_id", snap.ID,
		"numbers", len(snap.Numbers),
		"mode", string(snap.Mode))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"campaign_id": snap.ID,
		"numbers":     len(snap.Numbers),
		"mode":        string(snap.Mode),
	})
}

func (h CampaignHandler) stop(w http.ResponseWriter, r *http.Request) {
	h.Dialer.Stop()
	h.Logger.Info("campaign stop requested")
	writeJSON(w, http.StatusOK, h.progress())
}

func (h CampaignHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.progress())
}

func (h CampaignHandler) progress() map[string]any {
	p := h.Campaign.Progress()
	return map[string]any{
		"campaign_id":    p.ID,
		"active":         p.Active,
		"stop_requested": p.StopRequested,
		"dialed":         p.Dialed,
		"total":          p.Total,
		"mode":           p.Mode,
		"active_calls":   len(h.Store.List()),
		"gate_closed":    h.Gate.IsClosed(),
	}
}
