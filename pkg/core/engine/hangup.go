package engine

import (
	"fmt"
	"time"
)

// Severity levels attached to final statuses for display.
const (
	SeveritySuccess = "success"
	SeverityNeutral = "neutral"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// ClassifyHangup maps a provider hangup cause onto a human-readable
// description and a severity. ring is the observed ring duration and is
// folded into the no-answer description when known.
func ClassifyHangup(cause string, ring time.Duration) (description, severity string) {
	switch cause {
	case "user_busy":
		return "Busy", SeverityWarning
	case "no_answer", "originator_cancel", "timeout":
		if ring > 0 {
			return fmt.Sprintf("No answer after %ds ring", int(ring.Seconds())), SeverityWarning
		}
		return "No answer", SeverityWarning
	case "invalid_number", "unallocated_number":
		return "Invalid number", SeverityError
	case "call_rejected":
		return "Call rejected", SeverityError
	case "network_error", "destination_out_of_order", "no_route_destination":
		return "Network error", SeverityError
	case "normal_clearing", "":
		return "Call ended", SeverityNeutral
	default:
		return fmt.Sprintf("Call ended (%s)", cause), SeverityNeutral
	}
}
