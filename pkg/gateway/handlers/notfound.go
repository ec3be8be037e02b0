package handlers

import (
	"net/http"

	"github.com/dialdrop/dialdrop/pkg/core"
)

type NotFoundHandler struct{}

func (NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, core.NewNotFoundError("unknown endpoint "+r.URL.Path))
}
