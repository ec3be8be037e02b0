package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dialdrop/dialdrop/pkg/core"
	"github.com/dialdrop/dialdrop/pkg/gateway/config"
	"github.com/dialdrop/dialdrop/pkg/storage"
	"github.com/dialdrop/dialdrop/pkg/voicemail"
)

// VoiceLister fetches the available synthesis voices.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]voicemail.Voice, error)
}

// VoicemailHandler drives personalized voicemail generation.
type VoicemailHandler struct {
	Config    config.Config
	Generator *voicemail.Generator
	Voices    VoiceLister
	Store     *storage.Store
	Logger    *slog.Logger
}

func (h VoicemailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/voicemail/generate":
		h.generate(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/voicemail/cancel":
		h.cancel(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/voicemail/status":
		h.status(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/voicemail/voices":
		h.voices(w, r)
	default:
		methodNotAllowed(w, r)
	}
}

// generate starts a background synthesis run over the stored contacts.
// The template comes inline or by saved-template name.
func (h VoicemailHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Template     string `json:"template"`
		TemplateName string `json:"template_name"`
		VoiceID      string `json:"voice_id"`
	}
	if err := decodeJSON(r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}

	template := req.Template
	if template == "" && req.TemplateName != "" {
		body, err := h.Store.GetTemplate(r.Context(), req.TemplateName)
		if err != nil {
			writeError(w, r, core.NewNotFoundError(err.Error()))
			return
		}
		template = body
	}
	if template == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam(
			"template or template_name is required", "template"))
		return
	}

	contacts, err := h.Store.ListContacts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(contacts) == 0 {
		writeError(w, r, core.NewInvalidRequestError("no contacts uploaded"))
		return
	}

	if err := h.Generator.Generate(contacts, template, req.VoiceID); err != nil {
		writeError(w, r, core.NewConflictError(err.Error()))
		return
	}
	h.Logger.Info("voicemail generation accepted",
		"contacts", len(contacts), "voice_id", req.VoiceID)
	writeJSON(w, http.StatusAccepted, map[string]int{"contacts": len(contacts)})
}

func (h VoicemailHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.Generator.Cancel()
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (h VoicemailHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"progress":  h.Generator.Status(),
		"generated": h.Generator.Count(),
	})
}

func (h VoicemailHandler) voices(w http.ResponseWriter, r *http.Request) {
	voices, err := h.Voices.ListVoices(r.Context())
	if err != nil {
		writeError(w, r, core.NewProviderError("elevenlabs", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": voices})
}
