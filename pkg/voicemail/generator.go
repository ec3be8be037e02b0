package voicemail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const catalogFile = "catalog.json"

// Synthesizer renders text to audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, voiceID, text string) ([]byte, error)
}

// Progress is a snapshot of a generation run.
type Progress struct {
	Running   bool      `json:"running"`
	Total     int       `json:"total"`
	Done      int       `json:"done"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Generator runs personalized voicemail synthesis in the background and
// keeps a number-to-audio catalog on disk so generated audio survives
// restarts.
type Generator struct {
	tts        Synthesizer
	dir        string
	publicBase string
	log        *slog.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	progress Progress
	catalog  map[string]string // normalized number -> filename
}

// NewGenerator stores audio files under dir and reports URLs rooted at
// publicBase. An existing catalog in dir is loaded.
func NewGenerator(tts Synthesizer, dir, publicBase string, logger *slog.Logger) (*Generator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Generator{
		tts:        tts,
		dir:        dir,
		publicBase: strings.TrimRight(publicBase, "/"),
		log:        logger.With("component", "voicemail"),
		catalog:    map[string]string{},
	}
	if err := g.loadCatalog(); err != nil {
		g.log.Warn("voicemail catalog unreadable, starting empty", "error", err)
	}
	return g, nil
}

// Generate starts a background run over the contacts. It fails if a run
// is already in flight or the template is invalid.
func (g *Generator) Generate(contacts []Contact, template, voiceID string) error {
	if len(contacts) == 0 {
		return fmt.Errorf("no contacts to generate for")
	}
	if err := ValidateTemplate(template); err != nil {
		return err
	}
	if voiceID == "" {
		return fmt.Errorf("voice id is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return fmt.Errorf("generation already in progress")
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.running = true
	g.cancel = cancel
	g.progress = Progress{
		Running:   true,
		Total:     len(contacts),
		StartedAt: time.Now(),
	}

	go g.run(ctx, contacts, template, voiceID)
	return nil
}

func (g *Generator) run(ctx context.Context, contacts []Contact, template, voiceID string) {
	defer func() {
		g.mu.Lock()
		g.running = false
		g.cancel = nil
		g.progress.Running = false
		g.mu.Unlock()
	}()

	g.log.Info("voicemail generation started", "contacts", len(contacts))
	for _, contact := range contacts {
		if ctx.Err() != nil {
			g.log.Info("voicemail generation cancelled")
			return
		}
		if err := g.generateOne(ctx, contact, template, voiceID); err != nil {
			g.log.Error("voicemail generation failed",
				"number", contact.Phone, "error", err)
			g.mu.Lock()
			g.progress.Failed++
			g.progress.LastError = err.Error()
			g.mu.Unlock()
			continue
		}
		g.mu.Lock()
		g.progress.Done++
		g.mu.Unlock()
	}
	g.log.Info("voicemail generation finished")
}

func (g *Generator) generateOne(ctx context.Context, contact Contact, template, voiceID string) error {
	text := RenderTemplate(template, contact)
	if text == "" {
		return fmt.Errorf("template rendered empty for %s", contact.Phone)
	}
	audio, err := g.tts.Synthesize(ctx, voiceID, text)
	if err != nil {
		return err
	}

	filename := audioFilename(contact.Phone)
	if err := os.WriteFile(filepath.Join(g.dir, filename), audio, 0o644); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}

	g.mu.Lock()
	g.catalog[NormalizeNumber(contact.Phone)] = filename
	err = g.saveCatalogLocked()
	g.mu.Unlock()
	if err != nil {
		g.log.Warn("catalog save failed", "error", err)
	}
	return nil
}

// Cancel stops an in-flight run. Audio already generated stays in the
// catalog.
func (g *Generator) Cancel() {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Status returns a snapshot of the current or last run.
func (g *Generator) Status() Progress {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.progress
}

// AudioFor resolves a destination number to its personalized audio URL.
func (g *Generator) AudioFor(number string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	filename, ok := g.catalog[NormalizeNumber(number)]
	if !ok {
		return "", false
	}
	return g.publicBase + "/" + filename, true
}

// Count returns how many numbers have generated audio.
func (g *Generator) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.catalog)
}

// FilePath maps a catalog filename back to its on-disk path, refusing
// names that escape the audio directory.
func (g *Generator) FilePath(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid audio filename %q", filename)
	}
	return filepath.Join(g.dir, filename), nil
}

func audioFilename(number string) string {
	var b strings.Builder
	for _, r := range NormalizeNumber(number) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return "vm_" + b.String() + ".mp3"
}

func (g *Generator) loadCatalog() error {
	data, err := os.ReadFile(filepath.Join(g.dir, catalogFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return json.Unmarshal(data, &g.catalog)
}

func (g *Generator) saveCatalogLocked() error {
	data, err := json.MarshalIndent(g.catalog, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(g.dir, catalogFile), data, 0o644)
}
