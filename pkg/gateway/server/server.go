// Package server assembles the gateway: routes, middleware chain and
// the dependencies handlers need.
package server

import (
	"log/slog"
	"net/http"

	"github.com/dialdrop/dialdrop/pkg/core/callstate"
	"github.com/dialdrop/dialdrop/pkg/core/campaign"
	"github.com/dialdrop/dialdrop/pkg/core/dialer"
	"github.com/dialdrop/dialdrop/pkg/core/engine"
	"github.com/dialdrop/dialdrop/pkg/core/gate"
	"github.com/dialdrop/dialdrop/pkg/gateway/config"
	"github.com/dialdrop/dialdrop/pkg/gateway/handlers"
	"github.com/dialdrop/dialdrop/pkg/gateway/lifecycle"
	"github.com/dialdrop/dialdrop/pkg/gateway/mw"
	"github.com/dialdrop/dialdrop/pkg/report"
	"github.com/dialdrop/dialdrop/pkg/storage"
	"github.com/dialdrop/dialdrop/pkg/telnyx"
	"github.com/dialdrop/dialdrop/pkg/voicemail"
)

// Deps carries everything the gateway serves from. Reports may be nil
// when SMTP is not configured.
type Deps struct {
	Config    config.Config
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle

	Engine    *engine.Engine
	Dialer    *dialer.Dialer
	Campaign  *campaign.State
	CallStore *callstate.Store
	Gate      *gate.Gate

	Telnyx    *telnyx.Client
	Storage   *storage.Store
	Generator *voicemail.Generator
	TTS       *voicemail.TTSClient
	Reports   *report.Scheduler
}

type Server struct {
	deps Deps
	mux  *http.ServeMux
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		deps: deps,
		mux:  http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	d := s.deps

	// Unauthenticated: probes, the provider webhook, and audio fetched
	// by the provider's media layer.
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Lifecycle: d.Lifecycle})
	s.mux.Handle("/webhook", handlers.WebhookHandler{
		Engine:       d.Engine,
		MaxBodyBytes: d.Config.MaxBodyBytes,
		Logger:       d.Logger,
	})
	s.mux.Handle("/audio/", handlers.AudioHandler{Generator: d.Generator})

	// Admin surface, behind API-key auth.
	campaigns := handlers.CampaignHandler{
		Config:   d.Config,
		Dialer:   d.Dialer,
		Campaign: d.Campaign,
		Store:    d.CallStore,
		Gate:     d.Gate,
		Logger:   d.Logger,
	}
	s.admin("/v1/campaigns", campaigns)
	s.admin("/v1/campaigns/", campaigns)

	calls := handlers.CallsHandler{
		Config: d.Config,
		Placer: d.Telnyx,
		Store:  d.CallStore,
		Logger: d.Logger,
	}
	s.admin("/v1/calls", calls)
	s.admin("/v1/calls/", calls)

	dnc := handlers.DNCHandler{Config: d.Config, Store: d.Storage}
	s.admin("/v1/dnc", dnc)
	s.admin("/v1/dnc/", dnc)

	s.admin("/v1/contacts", handlers.ContactsHandler{Config: d.Config, Store: d.Storage})
	s.admin("/v1/templates", handlers.TemplatesHandler{Config: d.Config, Store: d.Storage})

	voicemails := handlers.VoicemailHandler{
		Config:    d.Config,
		Generator: d.Generator,
		Voices:    d.TTS,
		Store:     d.Storage,
		Logger:    d.Logger,
	}
	s.admin("/v1/voicemail/", voicemails)

	s.admin("/v1/reports/run", handlers.ReportsHandler{Scheduler: d.Reports, Logger: d.Logger})
	s.admin("/v1/live", handlers.LiveHandler{
		Store:    d.CallStore,
		Campaign: d.Campaign,
		Gate:     d.Gate,
		Logger:   d.Logger,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) admin(pattern string, h http.Handler) {
	s.mux.Handle(pattern, mw.Auth(s.deps.Config, h))
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.deps.Config, h)
	h = mw.Recover(s.deps.Logger, h)
	h = mw.AccessLog(s.deps.Logger, h)
	h = mw.RequestID(h)
	return h
}
