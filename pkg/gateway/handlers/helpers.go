// Package handlers implements the gateway's HTTP endpoints.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dialdrop/dialdrop/pkg/core"
	"github.com/dialdrop/dialdrop/pkg/gateway/apierror"
	"github.com/dialdrop/dialdrop/pkg/gateway/mw"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	apiErr, status := apierror.FromError(err, reqID)
	writeJSON(w, status, apierror.Envelope{Error: apiErr})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, &core.Error{
		Type:    core.ErrInvalidRequest,
		Message: fmt.Sprintf("method %s not allowed", r.Method),
	})
}

func decodeJSON(r *http.Request, maxBytes int64, dst any) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return core.NewInvalidRequestError("invalid request body: " + err.Error())
	}
	return nil
}
