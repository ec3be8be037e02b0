// Package voicemail builds personalized voicemail audio: contact list
// parsing, message templating, ElevenLabs synthesis and the generated
// audio catalog the engine resolves numbers against.
package voicemail

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Contact is one row of an uploaded contact list. All fields are
// optional except Phone.
type Contact struct {
	Name        string
	FirstName   string
	LastName    string
	Phone       string
	Email       string
	Address     string
	PaymentDate string
	Amount      string
	Company     string
}

// Field returns the value for a template placeholder name, deriving
// name parts when only a full name was provided.
func (c Contact) Field(name string) (string, bool) {
	switch name {
	case "name":
		if c.Name != "" {
			return c.Name, true
		}
		full := strings.TrimSpace(c.FirstName + " " + c.LastName)
		return full, full != ""
	case "first_name":
		if c.FirstName != "" {
			return c.FirstName, true
		}
		first, _ := splitName(c.Name)
		return first, first != ""
	case "last_name":
		if c.LastName != "" {
			return c.LastName, true
		}
		_, last := splitName(c.Name)
		return last, last != ""
	case "phone":
		return c.Phone, c.Phone != ""
	case "email":
		return c.Email, c.Email != ""
	case "address":
		return c.Address, c.Address != ""
	case "payment_date":
		return c.PaymentDate, c.PaymentDate != ""
	case "amount":
		return c.Amount, c.Amount != ""
	case "company":
		return c.Company, c.Company != ""
	}
	return "", false
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// header aliases accepted in uploaded CSVs, normalized form on the left.
var headerAliases = map[string]string{
	"name":         "name",
	"full_name":    "name",
	"first_name":   "first_name",
	"first":        "first_name",
	"last_name":    "last_name",
	"last":         "last_name",
	"phone":        "phone",
	"phone_number": "phone",
	"number":       "phone",
	"email":        "email",
	"email_address": "email",
	"address":      "address",
	"payment_date": "payment_date",
	"due_date":     "payment_date",
	"amount":       "amount",
	"amount_due":   "amount",
	"company":      "company",
}

// ParseContacts reads a CSV with a header row. Rows without a usable
// phone number are skipped; a file yielding no contacts is an error.
func ParseContacts(r io.Reader) ([]Contact, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = headerAliases[normalizeHeader(h)]
	}

	var contacts []Contact
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		var c Contact
		for i, val := range row {
			if i >= len(cols) {
				break
			}
			val = strings.TrimSpace(val)
			switch cols[i] {
			case "name":
				c.Name = val
			case "first_name":
				c.FirstName = val
			case "last_name":
				c.LastName = val
			case "phone":
				c.Phone = NormalizeNumber(val)
			case "email":
				c.Email = val
			case "address":
				c.Address = val
			case "payment_date":
				c.PaymentDate = val
			case "amount":
				c.Amount = val
			case "company":
				c.Company = val
			}
		}
		if c.Phone == "" {
			continue
		}
		contacts = append(contacts, c)
	}
	if len(contacts) == 0 {
		return nil, fmt.Errorf("no contacts with phone numbers found")
	}
	return contacts, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ReplaceAll(h, " ", "_")
}

// NormalizeNumber strips formatting and returns an E.164-ish number.
// US 10-digit numbers gain +1, 11-digit numbers starting with 1 gain +.
// Anything else keeps its digits with a leading + when one was present.
func NormalizeNumber(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	hadPlus := strings.HasPrefix(raw, "+")
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case d == "":
		return ""
	case hadPlus:
		return "+" + d
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && d[0] == '1':
		return "+" + d
	default:
		return "+" + d
	}
}
