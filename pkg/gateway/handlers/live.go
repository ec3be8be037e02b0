package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dialdrop/dialdrop/pkg/core/callstate"
	"github.com/dialdrop/dialdrop/pkg/core/campaign"
	"github.com/dialdrop/dialdrop/pkg/core/gate"
)

const (
	liveDefaultInterval = time.Second
	liveWriteTimeout    = 5 * time.Second
)

// LiveHandler streams call-board snapshots over a WebSocket so
// dashboards can watch the campaign without polling.
type LiveHandler struct {
	Store    *callstate.Store
	Campaign *campaign.State
	Gate     *gate.Gate
	Logger   *slog.Logger

	// Interval overrides the snapshot cadence, mainly for tests.
	Interval time.Duration
}

type liveSnapshot struct {
	Progress   campaign.Progress `json:"progress"`
	Calls      []callView        `json:"calls"`
	GateClosed bool              `json:"gate_closed"`
	SentAt     time.Time         `json:"sent_at"`
}

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin checks belong to the CORS allowlist on the outer chain.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := liveUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("live upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// drain control frames and detect close
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := h.Interval
	if interval <= 0 {
		interval = liveDefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := h.sendSnapshot(conn); err != nil {
			return
		}
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (h LiveHandler) sendSnapshot(conn *websocket.Conn) error {
	now := time.Now()
	records := h.Store.List()
	calls := make([]callView, 0, len(records))
	for _, rec := range records {
		calls = append(calls, callView{
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
	snap := liveSnapshot{
		Progress:   h.Campaign.Progress(),
		Calls:      calls,
		GateClosed: h.Gate.IsClosed(),
		SentAt:     now,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return conn.WriteJSON(snap)
}
