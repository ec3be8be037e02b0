// Package report builds and delivers the daily campaign summary email.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dialdrop/dialdrop/pkg/storage"
)

// Summary aggregates one reporting window of archived calls.
type Summary struct {
	From time.Time
	To   time.Time

	TotalCalls          int
	HumansReached       int
	Transferred         int
	Connected           int
	MachinesDetected    int
	VoicemailsDelivered int
	NoAnswer            int
	Busy                int
	InvalidNumbers      int
	Failed              int

	ByStatus map[string]int

	TotalRingSeconds float64
}

// BuildSummary aggregates call rows into a summary for the window.
// Transfer legs are excluded so each contact counts once.
func BuildSummary(rows []storage.CallRow, from, to time.Time) Summary {
	s := Summary{From: from, To: to, ByStatus: map[string]int{}}
	for _, row := range rows {
		if row.IsTransferLeg {
			continue
		}
		s.TotalCalls++
		s.ByStatus[row.Status]++
		s.TotalRingSeconds += row.RingSeconds

		if row.MachineDetected != nil {
			if *row.MachineDetected {
				s.MachinesDetected++
			} else {
				s.HumansReached++
			}
		}
		switch row.Status {
		case "transferred":
			s.Transferred++
		case "connected_speaking":
			s.Transferred++
			s.Connected++
		case "voicemail_complete":
			s.VoicemailsDelivered++
		case "transfer_failed", "voicemail_failed":
			s.Failed++
		}
		switch row.HangupCause {
		case "user_busy":
			s.Busy++
		case "no_answer", "originator_cancel", "timeout":
			s.NoAnswer++
		case "invalid_number", "unallocated_number":
			s.InvalidNumbers++
		}
	}
	return s
}

// RenderText produces the plain-text email body for a summary.
func RenderText(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily Call Report\n")
	fmt.Fprintf(&b, "Window: %s to %s\n\n",
		s.From.Format("2006-01-02 15:04 MST"),
		s.To.Format("2006-01-02 15:04 MST"))

	fmt.Fprintf(&b, "Total calls:          %d\n", s.TotalCalls)
	fmt.Fprintf(&b, "Humans reached:       %d\n", s.HumansReached)
	fmt.Fprintf(&b, "Transferred:          %d\n", s.Transferred)
	fmt.Fprintf(&b, "Connected to agent:   %d\n", s.Connected)
	fmt.Fprintf(&b, "Machines detected:    %d\n", s.MachinesDetected)
	fmt.Fprintf(&b, "Voicemails delivered: %d\n", s.VoicemailsDelivered)
	fmt.Fprintf(&b, "No answer:            %d\n", s.NoAnswer)
	fmt.Fprintf(&b, "Busy:                 %d\n", s.Busy)
	fmt.Fprintf(&b, "Invalid numbers:      %d\n", s.InvalidNumbers)
	fmt.Fprintf(&b, "Command failures:     %d\n", s.Failed)

	if len(s.ByStatus) > 0 {
		fmt.Fprintf(&b, "\nBy final status:\n")
		statuses := make([]string, 0, len(s.ByStatus))
		for status := range s.ByStatus {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			fmt.Fprintf(&b, "  %-22s %d\n", status, s.ByStatus[status])
		}
	}
	return b.String()
}
