package handlers

import (
	"net/http"

	"github.com/dialdrop/dialdrop/pkg/core"
	"github.com/dialdrop/dialdrop/pkg/gateway/config"
	"github.com/dialdrop/dialdrop/pkg/storage"
	"github.com/dialdrop/dialdrop/pkg/voicemail"
)

// ContactsHandler imports and lists the contact roster used for
// personalized voicemail.
type ContactsHandler struct {
	Config config.Config
	Store  *storage.Store
}

func (h ContactsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.upload(w, r)
	default:
		methodNotAllowed(w, r)
	}
}

// upload accepts a CSV body with a header row and upserts the rows.
func (h ContactsHandler) upload(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	contacts, err := voicemail.ParseContacts(body)
	if err != nil {
		writeError(w, r, core.NewInvalidRequestError(err.Error()))
		return
	}
	if err := h.Store.SaveContacts(r.Context(), contacts); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": len(contacts)})
}

func (h ContactsHandler) list(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.Store.ListContacts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	type contactView struct {
		Phone       string `json:"phone"`
		Name        string `json:"name,omitempty"`
		Email       string `json:"email,omitempty"`
		PaymentDate string `json:"payment_date,omitempty"`
		Amount      string `json:"amount,omitempty"`
		Company     string `json:"company,omitempty"`
	}
	views := make([]contactView, 0, len(contacts))
	for _, c := range contacts {
		views = append(views, contactView{
			Phone:       c.Phone,
			Name:        c.Name,
			Email:       c.Email,
			PaymentDate: c.PaymentDate,
			Amount:      c.Amount,
			Company:     c.Company,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": views})
}
