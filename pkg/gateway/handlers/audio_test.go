package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dialdrop/dialdrop/pkg/voicemail"
)

func newAudioHandler(t *testing.T) (AudioHandler, string) {
	t.Helper()
	dir := t.TempDir()
	gen, err := voicemail.NewGenerator(nil, dir, "https://example.com/audio", nil)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	return AudioHandler{Generator: gen}, dir
}

func TestAudioServesFile(t *testing.T) {
	h, dir := newAudioHandler(t)
	if err := os.WriteFile(filepath.Join(dir, "vm_15551234567.mp3"), []byte("mp3data"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/audio/vm_15551234567.mp3", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("content-type = %q", got)
	}
	if rec.Body.String() != "mp3data" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestAudioRejectsTraversal(t *testing.T) {
	h, _ := newAudioHandler(t)
	for _, path := range []string{
		"/audio/../secret.txt",
		"/audio/sub/vm_1.mp3",
		"/audio/..%2Fsecret",
	} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			t.Errorf("%s served, want rejection", path)
		}
	}
}

func TestAudioMethodNotAllowed(t *testing.T) {
	h, _ := newAudioHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/audio/vm_1.mp3", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
