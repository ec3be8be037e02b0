package handlers

import (
	"log/slog"
	"net/http"

	"github.com/dialdrop/dialdrop/pkg/core"
	"github.com/dialdrop/dialdrop/pkg/report"
)

// ReportsHandler triggers an immediate daily-report run.
type ReportsHandler struct {
	Scheduler *report.Scheduler
	Logger    *slog.Logger
}

func (h ReportsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if h.Scheduler == nil {
		writeError(w, r, core.NewInvalidRequestError("reporting is not configured"))
		return
	}
	if err := h.Scheduler.RunOnce(r.Context()); err != nil {
		h.Logger.Error("manual report run failed", "error", err)
		writeError(w, r, core.NewAPIError("report run failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}
