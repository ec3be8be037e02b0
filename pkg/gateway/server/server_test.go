package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dialdrop/dialdrop/pkg/core/amd"
	"github.com/dialdrop/dialdrop/pkg/core/callstate"
	"github.com/dialdrop/dialdrop/pkg/core/campaign"
	"github.com/dialdrop/dialdrop/pkg/core/dialer"
	"github.com/dialdrop/dialdrop/pkg/core/engine"
	"github.com/dialdrop/dialdrop/pkg/core/gate"
	"github.com/dialdrop/dialdrop/pkg/gateway/config"
	"github.com/dialdrop/dialdrop/pkg/gateway/lifecycle"
	"github.com/dialdrop/dialdrop/pkg/storage"
	"github.com/dialdrop/dialdrop/pkg/telnyx"
	"github.com/dialdrop/dialdrop/pkg/voicemail"
)

// telnyxFake records provider commands and hands out call ids.
type telnyxFake struct {
	mu    sync.Mutex
	seq   int
	paths []string
}

func (f *telnyxFake) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.paths = append(f.paths, r.URL.Path)
		f.seq++
		id := fmt.Sprintf("cc-%d", f.seq)
		f.mu.Unlock()
		fmt.Fprintf(w, `{"data":{"call_control_id":"%s"}}`, id)
	}
}

func (f *telnyxFake) sawPath(sub string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.paths {
		if strings.Contains(p, sub) {
			return true
		}
	}
	return false
}

type nullSynth struct{}

func (nullSynth) Synthesize(context.Context, string, string) ([]byte, error) {
	return []byte("audio"), nil
}

type testEnv struct {
	handler http.Handler
	store   *callstate.Store
	storage *storage.Store
	telnyx  *telnyxFake
}

const adminKey = "test-admin-key"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fake := &telnyxFake{}
	providerSrv := httptest.NewServer(fake.handler())
	t.Cleanup(providerSrv.Close)

	cfg := config.Config{
		Addr:               ":0",
		AuthMode:           config.AuthModeRequired,
		APIKeys:            map[string]struct{}{adminKey: {}},
		MaxBodyBytes:       1 << 20,
		CORSAllowedOrigins: map[string]struct{}{},
		TelnyxAPIKey:       "key",
		TelnyxConnectionID: "conn",
		FromNumber:         "+15550000001",
		TransferNumber:     "+15550009999",
		PublicBaseURL:      "https://dialer.example.com",
		AMDTimeout:         time.Hour,
		DBPath:             filepath.Join(t.TempDir(), "test.db"),
		AudioDir:           t.TempDir(),
	}

	store := callstate.NewStore()
	comps := callstate.NewCompletionRegistry()
	g := gate.New()
	timers := amd.NewTimers()
	t.Cleanup(timers.CancelAll)
	camp := campaign.NewState()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tel := telnyx.New(telnyx.Config{
		APIKey:       cfg.TelnyxAPIKey,
		ConnectionID: cfg.TelnyxConnectionID,
		FromNumber:   cfg.FromNumber,
		WebhookURL:   cfg.WebhookURL(),
		BaseURL:      providerSrv.URL,
	})

	gen, err := voicemail.NewGenerator(nullSynth{}, cfg.AudioDir, cfg.AudioBaseURL(), nil)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}

	eng := engine.New(engine.Config{
		Store:       store,
		Completions: comps,
		Gate:        g,
		Timers:      timers,
		Campaign:    camp,
		Provider:    tel,
		History:     db,
		Outcomes:    db,
		Audio:       gen,
		FromNumber:  cfg.FromNumber,
		AMDTimeout:  cfg.AMDTimeout,
	})
	dlr := dialer.New(dialer.Config{
		Placer:      tel,
		DNC:         db,
		Store:       store,
		Completions: comps,
		Gate:        g,
		Campaign:    camp,
		FromNumber:  cfg.FromNumber,
	})

	srv := New(Deps{
		Config:    cfg,
		Lifecycle: &lifecycle.Lifecycle{},
		Engine:    eng,
		Dialer:    dlr,
		Campaign:  camp,
		CallStore: store,
		Gate:      g,
		Telnyx:    tel,
		Storage:   db,
		Generator: gen,
		TTS:       voicemail.NewTTSClient("el-key").WithBaseURL(providerSrv.URL),
	})
	return &testEnv{handler: srv.Handler(), store: store, storage: db, telnyx: fake}
}

func (env *testEnv) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+adminKey)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpointsOpen(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, "GET", "/healthz", "", false); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", rec.Code)
	}
	if rec := env.do(t, "GET", "/readyz", "", false); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d, want 200", rec.Code)
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/v1/calls", "/v1/dnc", "/v1/campaigns/status", "/v1/templates"} {
		if rec := env.do(t, "GET", path, "", false); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without auth = %d, want 401", path, rec.Code)
		}
	}
	if rec := env.do(t, "GET", "/v1/calls", "", true); rec.Code != http.StatusOK {
		t.Fatalf("/v1/calls with auth = %d, want 200", rec.Code)
	}
}

func TestWebhookOpenAndDrivesEngine(t *testing.T) {
	env := newTestEnv(t)
	env.store.Create("cc-hook", "+15551234567", "+15550000001")

	body := `{"data":{"event_type":"call.answered","payload":{"call_control_id":"cc-hook","to":"+15551234567"}}}`
	rec := env.do(t, "POST", "/webhook", body, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook = %d, want 200", rec.Code)
	}
	r, _ := env.store.Get("cc-hook")
	if r.Status != callstate.StatusAnswered {
		t.Fatalf("status = %s, want answered", r.Status)
	}
	if !env.telnyx.sawPath("transcription_start") {
		t.Fatal("answer did not start transcription")
	}
}

func TestWebhookMalformedStill200(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, "POST", "/webhook", "not json", false); rec.Code != http.StatusOK {
		t.Fatalf("webhook garbage = %d, want 200", rec.Code)
	}
}

func TestTestCallPlacesCall(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/v1/calls/test", `{"number":"+15551234567"}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("test call = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		CallID string `json:"call_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	r, ok := env.store.Get(resp.CallID)
	if !ok || r.Status != callstate.StatusTestRinging {
		t.Fatalf("record = %+v ok=%v, want test_call_ringing", r, ok)
	}
}

func TestDNCRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, "POST", "/v1/dnc", `{"number":"+15551230000","reason":"asked"}`, true); rec.Code != http.StatusOK {
		t.Fatalf("dnc add = %d", rec.Code)
	}
	rec := env.do(t, "GET", "/v1/dnc", "", true)
	if !strings.Contains(rec.Body.String(), "+15551230000") {
		t.Fatalf("dnc list missing number: %s", rec.Body.String())
	}
	if rec := env.do(t, "DELETE", "/v1/dnc/+15551230000", "", true); rec.Code != http.StatusOK {
		t.Fatalf("dnc delete = %d", rec.Code)
	}
}

func TestContactsUploadAndTemplates(t *testing.T) {
	env := newTestEnv(t)

	csv := "name,phone\nJordan Lee,+15551234567\n"
	req := httptest.NewRequest("POST", "/v1/contacts", strings.NewReader(csv))
	req.Header.Set("Authorization", "Bearer "+adminKey)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("contacts upload = %d, body %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(t, "POST", "/v1/templates", `{"name":"t1","body":"Hi {first_name}"}`, true); rec.Code != http.StatusOK {
		t.Fatalf("template save = %d", rec.Code)
	}
	if rec := env.do(t, "POST", "/v1/templates", `{"name":"t2","body":"Hi {bogus}"}`, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad template = %d, want 400", rec.Code)
	}

	rec = env.do(t, "POST", "/v1/voicemail/generate", `{"template_name":"t1","voice_id":"v1"}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("voicemail generate = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestCampaignValidation(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/v1/campaigns", `{"numbers":[],"mode":"sequential"}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty campaign = %d, want 400", rec.Code)
	}
	rec = env.do(t, "POST", "/v1/campaigns", `{"numbers":["+15551234567"],"mode":"simultaneous"}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("simultaneous without batch = %d, want 400", rec.Code)
	}
}

func TestCampaignStatusShape(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/v1/campaigns/status", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"active", "dialed", "total", "gate_closed", "active_calls"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("status missing %q: %v", key, resp)
		}
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/v1/nope", "", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route = %d, want 404", rec.Code)
	}
}

func TestRequestIDHeaderSet(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/healthz", "", false)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID not set")
	}
}
