package voicemail

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// allowedPlaceholders are the contact fields a message template may
// reference.
var allowedPlaceholders = map[string]bool{
	"name":         true,
	"first_name":   true,
	"last_name":    true,
	"phone":        true,
	"email":        true,
	"address":      true,
	"payment_date": true,
	"amount":       true,
	"company":      true,
}

// Placeholders returns the distinct placeholder names used in a
// template, sorted.
func Placeholders(tpl string) []string {
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(tpl, -1) {
		seen[m[1]] = true
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ValidateTemplate rejects empty templates and unknown placeholders.
func ValidateTemplate(tpl string) error {
	if strings.TrimSpace(tpl) == "" {
		return fmt.Errorf("template is empty")
	}
	for _, name := range Placeholders(tpl) {
		if !allowedPlaceholders[name] {
			return fmt.Errorf("unknown placeholder {%s}", name)
		}
	}
	return nil
}

// RenderTemplate substitutes contact fields into the template. Missing
// fields render as empty strings and surrounding whitespace is
// collapsed so the spoken message stays natural.
func RenderTemplate(tpl string, c Contact) string {
	out := placeholderRe.ReplaceAllStringFunc(tpl, func(m string) string {
		name := m[1 : len(m)-1]
		if val, ok := c.Field(name); ok {
			return val
		}
		return ""
	})
	return strings.Join(strings.Fields(out), " ")
}
