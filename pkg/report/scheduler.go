package report

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dialdrop/dialdrop/pkg/storage"
)

// HistorySource supplies archived calls for a reporting window.
type HistorySource interface {
	CallsSince(ctx context.Context, since time.Time) ([]storage.CallRow, error)
}

// Sender delivers a rendered report.
type Sender interface {
	Send(to []string, subject, body string) error
}

// Scheduler sends the daily summary at a fixed local hour.
type Scheduler struct {
	history    HistorySource
	sender     Sender
	recipients []string
	hour       int
	loc        *time.Location
	log        *slog.Logger

	now func() time.Time
}

func NewScheduler(history HistorySource, sender Sender, recipients []string, hour int, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		history:    history,
		sender:     sender,
		recipients: recipients,
		hour:       hour,
		loc:        loc,
		log:        logger.With("component", "report"),
		now:        time.Now,
	}
}

// Start runs the daily loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		for {
			wait := s.untilNextRun()
			s.log.Info("next daily report scheduled", "in", wait.Round(time.Second))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("daily report failed", "error", err)
			}
		}
	}()
}

// RunOnce builds and sends the report covering the last 24 hours.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	runID := ulid.MustNew(ulid.Now(), rand.Reader).String()
	to := s.now()
	from := to.Add(-24 * time.Hour)

	rows, err := s.history.CallsSince(ctx, from)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	summary := BuildSummary(rows, from, to)
	subject := fmt.Sprintf("Daily Call Report %s (%d calls)",
		to.In(s.loc).Format("2006-01-02"), summary.TotalCalls)

	if err := s.sender.Send(s.recipients, subject, RenderText(summary)); err != nil {
		return fmt.Errorf("report %s: %w", runID, err)
	}
	s.log.Info("daily report sent",
		"run_id", runID,
		"calls", summary.TotalCalls,
		"recipients", len(s.recipients))
	return nil
}

func (s *Scheduler) untilNextRun() time.Duration {
	now := s.now().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, s.loc)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
