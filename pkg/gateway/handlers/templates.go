package handlers

import (
	"net/http"
	"time"

	"github.com/dialdrop/dialdrop/pkg/core"
	"github.com/dialdrop/dialdrop/pkg/gateway/config"
	"github.com/dialdrop/dialdrop/pkg/storage"
)

// TemplatesHandler stores and lists voicemail message templates.
type TemplatesHandler struct {
	Config config.Config
	Store  *storage.Store
}

func (h TemplatesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.save(w, r)
	default:
		methodNotAllowed(w, r)
	}
}

func (h TemplatesHandler) save(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Body string `json:"body"`
	}
	if err := decodeJSON(r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Store.SaveTemplate(r.Context(), req.Name, req.Body); err != nil {
		writeError(w, r, core.NewInvalidRequestError(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (h TemplatesHandler) list(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Store.ListTemplates(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	type templateView struct {
		Name      string    `json:"name"`
		Body      string    `json:"body"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	views := make([]templateView, 0, len(templates))
	for _, t := range templates {
		views = append(views, templateView{Name: t.Name, Body: t.Body, UpdatedAt: t.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": views})
}
