// Command dialdrop-server runs the outbound call orchestration service:
// the Telnyx webhook endpoint, the campaign dialer, the admin API, and
// the optional daily email report.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dialdrop/dialdrop/internal/dotenv"
	"github.com/dialdrop/dialdrop/pkg/core/amd"
	"github.com/dialdrop/dialdrop/pkg/core/callstate"
	"github.com/dialdrop/dialdrop/pkg/core/campaign"
	"github.com/dialdrop/dialdrop/pkg/core/dialer"
	"github.com/dialdrop/dialdrop/pkg/core/engine"
	"github.com/dialdrop/dialdrop/pkg/core/gate"
	"github.com/dialdrop/dialdrop/pkg/gateway/config"
	"github.com/dialdrop/dialdrop/pkg/gateway/lifecycle"
	gatewayserver "github.com/dialdrop/dialdrop/pkg/gateway/server"
	"github.com/dialdrop/dialdrop/pkg/report"
	"github.com/dialdrop/dialdrop/pkg/storage"
	"github.com/dialdrop/dialdrop/pkg/telnyx"
	"github.com/dialdrop/dialdrop/pkg/voicemail"
)

type app struct {
	cfg    config.Config
	logger *slog.Logger

	storage *storage.Store
	dialer  *dialer.Dialer
	timers  *amd.Timers
	reports *report.Scheduler
	life    *lifecycle.Lifecycle
	server  *gatewayserver.Server
}

func buildApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	tel := telnyx.New(telnyx.Config{
		APIKey:       cfg.TelnyxAPIKey,
		ConnectionID: cfg.TelnyxConnectionID,
		FromNumber:   cfg.FromNumber,
		WebhookURL:   cfg.WebhookURL(),
		Logger:       logger,
	})

	tts := voicemail.NewTTSClient(cfg.ElevenLabsAPIKey)
	gen, err := voicemail.NewGenerator(tts, cfg.AudioDir, cfg.AudioBaseURL(), logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init voicemail generator: %w", err)
	}

	store := callstate.NewStore()
	comps := callstate.NewCompletionRegistry()
	g := gate.New()
	timers := amd.NewTimers()
	camp := campaign.NewState()

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
		Logger:      logger,
	})
	dlr := dialer.New(dialer.Config{
		Placer:      tel,
		DNC:         db,
		Store:       store,
		Completions: comps,
		Gate:        g,
		Campaign:    camp,
		FromNumber:  cfg.FromNumber,
		Logger:      logger,
	})

	var reports *report.Scheduler
	if cfg.SMTPHost != "" {
		mailer := report.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.ReportFrom)
		reports = report.NewScheduler(db, mailer, cfg.ReportRecipients, cfg.ReportHour, nil, logger)
	}

	life := &lifecycle.Lifecycle{}
	srv := gatewayserver.New(gatewayserver.Deps{
		Config:    cfg,
		Logger:    logger,
		Lifecycle: life,
		Engine:    eng,
		Dialer:    dlr,
		Campaign:  camp,
		CallStore: store,
		Gate:      g,
		Telnyx:    tel,
		Storage:   db,
		Generator: gen,
		TTS:       tts,
		Reports:   reports,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		storage: db,
		dialer:  dlr,
		timers:  timers,
		reports: reports,
		life:    life,
		server:  srv,
	}, nil
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.storage.Close()

	if a.reports != nil {
		reportCtx, cancelReports := context.WithCancel(ctx)
		defer cancelReports()
		a.reports.Start(reportCtx)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}

	logger.Info("starting dialdrop",
		"addr", cfg.Addr,
		"auth_mode", cfg.AuthMode,
		"webhook_url", cfg.WebhookURL(),
		"reports", a.reports != nil,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	a.life.SetDraining(true)
	a.dialer.Stop()
	a.timers.CancelAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("dialdrop stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.Load(".env"); err != nil {
		fmt.Fprintf(stderr, "dialdrop-server: %v\n", err)
		return 1
	}
	if err := run(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "dialdrop-server: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr))
}
