package handlers

import (
	"net/http"
	"strings"

	"github.com/dialdrop/dialdrop/pkg/core"
	"github.com/dialdrop/dialdrop/pkg/voicemail"
)

// AudioHandler serves generated voicemail audio to the telephony
// provider. Filenames are validated against the generator's directory
// so the path cannot escape it.
type AudioHandler struct {
	Generator *voicemail.Generator
}

func (h AudioHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r)
		return
	}
	filename := strings.TrimPrefix(r.URL.Path, "/audio/")
	path, err := h.Generator.FilePath(filename)
	if err != nil {
		writeError(w, r, core.NewInvalidRequestError("invalid audio path"))
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, path)
}
