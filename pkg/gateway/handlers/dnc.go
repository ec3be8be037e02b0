package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dialdrop/dialdrop/pkg/core"
	"github.com/dialdrop/dialdrop/pkg/gateway/config"
	"github.com/dialdrop/dialdrop/pkg/storage"
)

// DNCHandler manages the do-not-call list.
type DNCHandler struct {
	Config config.Config
	Store  *storage.Store
}

func (h DNCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.add(w, r)
	case http.MethodDelete:
		h.remove(w, r)
	default:
		methodNotAllowed(w, r)
	}
}

func (h DNCHandler) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.ListDNC(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	type entryView struct {
		Number  string    `json:"number"`
		Reason  string    `json:"reason,omitempty"`
		AddedAt time.Time `json:"added_at"`
	}
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView{Number: e.Number, Reason: e.Reason, AddedAt: e.AddedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": views})
}

func (h DNCHandler) add(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Number string `json:"number"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Number == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("number is required", "number"))
		return
	}
	if err := h.Store.AddDNC(r.Context(), req.Number, req.Reason); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"added": true})
}

func (h DNCHandler) remove(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimPrefix(r.URL.Path, "/v1/dnc/")
	if number == "" || strings.Contains(number, "/") {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("number is required", "number"))
		return
	}
	if err := h.Store.RemoveDNC(r.Context(), number); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}
