// Package storage is the SQLite-backed persistence layer: archived call
// history, the do-not-call list, uploaded contacts and saved message
// templates.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dialdrop/dialdrop/pkg/core/callstate"
	"github.com/dialdrop/dialdrop/pkg/voicemail"
)

const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS call_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	call_id TEXT NOT NULL,
	number TEXT NOT NULL,
	from_number TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	status_description TEXT NOT NULL DEFAULT '',
	status_color TEXT NOT NULL DEFAULT '',
	amd_result TEXT NOT NULL DEFAULT '',
	machine_detected INTEGER,
	transferred INTEGER NOT NULL DEFAULT 0,
	voicemail_dropped INTEGER NOT NULL DEFAULT 0,
	hangup_cause TEXT NOT NULL DEFAULT '',
	hangup_source TEXT NOT NULL DEFAULT '',
	recording_url TEXT NOT NULL DEFAULT '',
	transcript TEXT NOT NULL DEFAULT '[]',
	ring_seconds REAL NOT NULL DEFAULT 0,
	is_transfer_leg INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	ended_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_call_history_ended_at ON call_history(ended_at);

CREATE TABLE IF NOT EXISTS dnc (
	number TEXT PRIMARY KEY,
	reason TEXT NOT NULL DEFAULT '',
	added_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	phone TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	payment_date TEXT NOT NULL DEFAULT '',
	amount TEXT NOT NULL DEFAULT '',
	company TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS templates (
	name TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Store provides SQLite-backed persistence. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CallRow is one archived call.
type CallRow struct {
	CallID            string
	Number            string
	From              string
	Status            string
	StatusDescription string
	StatusColor       string
	AMDResult         string
	MachineDetected   *bool
	Transferred       bool
	VoicemailDropped  bool
	HangupCause       string
	HangupSource      string
	RecordingURL      string
	Transcript        []callstate.TranscriptEntry
	RingSeconds       float64
	IsTransferLeg     bool
	CreatedAt         time.Time
	EndedAt           time.Time
}

// ArchiveCall persists a finalized call record.
func (s *Store) ArchiveCall(ctx context.Context, rec callstate.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		return fmt.Errorf("call id is required")
	}

	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	ended := rec.RingEnd
	if ended.IsZero() {
		ended = time.Now().UTC()
	}
	var machine any
	if rec.MachineDetected != nil {
		machine = boolInt(*rec.MachineDetected)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO call_history (
			call_id, number, from_number, status, status_description,
			status_color, amd_result, machine_detected, transferred,
			voicemail_dropped, hangup_cause, hangup_source, recording_url,
			transcript, ring_seconds, is_transfer_leg, created_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Number, rec.From, string(rec.Status), rec.StatusDescription,
		rec.StatusColor, rec.AMDResult, machine, boolInt(rec.Transferred),
		boolInt(rec.VoicemailDropped), rec.HangupCause, rec.HangupSource,
		rec.RecordingURL, string(transcript),
		rec.RingDuration(ended).Seconds(), boolInt(rec.IsTransferLeg),
		rec.CreatedAt.UTC().Format(timeFormat), ended.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("archive call %s: %w", rec.ID, err)
	}
	return nil
}

// RecentCalls returns the most recently ended calls, newest first.
func (s *Store) RecentCalls(ctx context.Context, limit int) ([]CallRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, selectCalls+`
		ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent calls: %w", err)
	}
	defer rows.Close()
	return scanCalls(rows)
}

// CallsSince returns calls ended at or after the given time, oldest
// first.
func (s *Store) CallsSince(ctx context.Context, since time.Time) ([]CallRow, error) {
	rows, err := s.db.QueryContext(ctx, selectCalls+`
		WHERE ended_at >= ? ORDER BY ended_at ASC`,
		since.UTC().Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("query calls since: %w", err)
	}
	defer rows.Close()
	return scanCalls(rows)
}

const selectCalls = `
	SELECT call_id, number, from_number, status, status_description,
		status_color, amd_result, machine_detected, transferred,
		voicemail_dropped, hangup_cause, hangup_source, recording_url,
		transcript, ring_seconds, is_transfer_leg, created_at, ended_at
	FROM call_history`

func scanCalls(rows *sql.Rows) ([]CallRow, error) {
	var out []CallRow
	for rows.Next() {
		var r CallRow
		var machine sql.NullInt64
		var transferred, dropped, leg int
		var transcript, createdAt, endedAt string
		if err := rows.Scan(
			&r.CallID, &r.Number, &r.From, &r.Status, &r.StatusDescription,
			&r.StatusColor, &r.AMDResult, &machine, &transferred,
			&dropped, &r.HangupCause, &r.HangupSource, &r.RecordingURL,
			&transcript, &r.RingSeconds, &leg, &createdAt, &endedAt,
		); err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		if machine.Valid {
			v := machine.Int64 != 0
			r.MachineDetected = &v
		}
		r.Transferred = transferred != 0
		r.VoicemailDropped = dropped != 0
		r.IsTransferLeg = leg != 0
		if err := json.Unmarshal([]byte(transcript), &r.Transcript); err != nil {
			r.Transcript = nil
		}
		r.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		r.EndedAt, _ = time.Parse(timeFormat, endedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DNCEntry is one suppressed number.
type DNCEntry struct {
	Number  string
	Reason  string
	AddedAt time.Time
}

// AddDNC adds a number to the do-not-call list. Re-adding updates the
// reason.
func (s *Store) AddDNC(ctx context.Context, number, reason string) error {
	number = voicemail.NormalizeNumber(number)
	if number == "" {
		return fmt.Errorf("number is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dnc (number, reason, added_at) VALUES (?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET reason = excluded.reason`,
		number, reason, time.Now().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("add dnc %s: %w", number, err)
	}
	return nil
}

// RemoveDNC removes a number from the do-not-call list.
func (s *Store) RemoveDNC(ctx context.Context, number string) error {
	number = voicemail.NormalizeNumber(number)
	if number == "" {
		return fmt.Errorf("number is required")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dnc WHERE number = ?`, number); err != nil {
		return fmt.Errorf("remove dnc %s: %w", number, err)
	}
	return nil
}

// ListDNC returns all suppressed numbers, newest first.
func (s *Store) ListDNC(ctx context.Context) ([]DNCEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT number, reason, added_at FROM dnc ORDER BY added_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list dnc: %w", err)
	}
	defer rows.Close()

	var out []DNCEntry
	for rows.Next() {
		var e DNCEntry
		var addedAt string
		if err := rows.Scan(&e.Number, &e.Reason, &addedAt); err != nil {
			return nil, fmt.Errorf("scan dnc row: %w", err)
		}
		e.AddedAt, _ = time.Parse(timeFormat, addedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Suppressed reports whether a number is on the do-not-call list.
func (s *Store) Suppressed(ctx context.Context, number string) (bool, error) {
	number = voicemail.NormalizeNumber(number)
	if number == "" {
		return false, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM dnc WHERE number = ?`, number).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dnc lookup %s: %w", number, err)
	}
	return true, nil
}

// NoteOutcome reacts to a finalized call: numbers the network reports
// as invalid are auto-added to the do-not-call list so later campaigns
// skip them.
func (s *Store) NoteOutcome(ctx context.Context, rec callstate.Record) error {
	switch rec.HangupCause {
	case "invalid_number", "unallocated_number":
		return s.AddDNC(ctx, rec.Number, "auto: "+rec.HangupCause)
	}
	return nil
}

// SaveContacts upserts uploaded contacts keyed by phone number.
func (s *Store) SaveContacts(ctx context.Context, contacts []voicemail.Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin contacts tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(timeFormat)
	for _, c := range contacts {
		phone := voicemail.NormalizeNumber(c.Phone)
		if phone == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contacts (
				phone, name, first_name, last_name, email, address,
				payment_date, amount, company, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(phone) DO UPDATE SET
				name = excluded.name,
				first_name = excluded.first_name,
				last_name = excluded.last_name,
				email = excluded.email,
				address = excluded.address,
				payment_date = excluded.payment_date,
				amount = excluded.amount,
				company = excluded.company,
				updated_at = excluded.updated_at`,
			phone, c.Name, c.FirstName, c.LastName, c.Email, c.Address,
			c.PaymentDate, c.Amount, c.Company, now,
		); err != nil {
			return fmt.Errorf("upsert contact %s: %w", phone, err)
		}
	}
	return tx.Commit()
}

// ListContacts returns all stored contacts ordered by phone number.
func (s *Store) ListContacts(ctx context.Context) ([]voicemail.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT phone, name, first_name, last_name, email, address,
			payment_date, amount, company
		FROM contacts ORDER BY phone`)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []voicemail.Contact
	for rows.Next() {
		var c voicemail.Contact
		if err := rows.Scan(&c.Phone, &c.Name, &c.FirstName, &c.LastName,
			&c.Email, &c.Address, &c.PaymentDate, &c.Amount, &c.Company); err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Template is one saved voicemail message template.
type Template struct {
	Name      string
	Body      string
	UpdatedAt time.Time
}

// SaveTemplate validates and upserts a message template.
func (s *Store) SaveTemplate(ctx context.Context, name, body string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("template name is required")
	}
	if err := voicemail.ValidateTemplate(body); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (name, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at`,
		name, body, time.Now().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("save template %s: %w", name, err)
	}
	return nil
}

// GetTemplate returns a template body by name.
func (s *Store) GetTemplate(ctx context.Context, name string) (string, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM templates WHERE name = ?`, name).Scan(&body)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("template %q not found", name)
	}
	if err != nil {
		return "", fmt.Errorf("get template %s: %w", name, err)
	}
	return body, nil
}

// ListTemplates returns all saved templates ordered by name.
func (s *Store) ListTemplates(ctx context.Context) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, body, updated_at FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var t Template
		var updatedAt string
		if err := rows.Scan(&t.Name, &t.Body, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan template row: %w", err)
		}
		t.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
