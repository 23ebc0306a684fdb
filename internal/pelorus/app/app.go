// Package app assembles the Pelorus service: stores, collaborator clients,
// the dialogue router, and the webhook server, with one explicit handle per
// subsystem threaded through construction — no ambient singletons.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetline/pelorus/internal/pelorus/audit"
	"github.com/fleetline/pelorus/internal/pelorus/delivery"
	"github.com/fleetline/pelorus/internal/pelorus/dialogue"
	"github.com/fleetline/pelorus/internal/pelorus/directory"
	"github.com/fleetline/pelorus/internal/pelorus/fleetdata"
	"github.com/fleetline/pelorus/internal/pelorus/matrix"
	"github.com/fleetline/pelorus/internal/pelorus/nlp"
	"github.com/fleetline/pelorus/internal/pelorus/ratelimit"
	"github.com/fleetline/pelorus/internal/pelorus/session"
	"github.com/fleetline/pelorus/internal/pelorus/store"
	"github.com/fleetline/pelorus/internal/pelorus/webhook"
)

// Config holds application configuration, loaded from the environment by
// cmd/pelorus.
type Config struct {
	// HTTPAddr is the listen address of the inbound webhook server.
	HTTPAddr string
	// DatabasePath is the SQLite file for the audit log and catalog snapshot.
	DatabasePath string

	// CatalogPath is an optional YAML catalog file, used as the last
	// fallback when neither the fleet-data API nor the snapshot can
	// provide the vessel directory.
	CatalogPath string

	// FleetData configures the vessel-data API client. BaseURL required.
	FleetData fleetdata.Config
	// NLP configures the intent-detection provider.
	NLP nlp.Config
	// Push configures the outbound delivery channel. Optional; when the
	// endpoint is empty outbound messages are dropped with a debug log.
	Push delivery.PushConfig

	// Matrix configures the optional ops-room notifier. All three client
	// fields plus OpsRoomID must be set to enable it.
	Matrix    matrix.Config
	OpsRoomID string

	// RateLimit is the per-sender request cap per window. Defaults to
	// ratelimit.DefaultLimit.
	RateLimit int
	// RateWindow is the limiter window length. Defaults to one hour.
	RateWindow time.Duration
	// SessionTTL bounds pending follow-up choices. Defaults to
	// dialogue.DefaultSessionTTL.
	SessionTTL time.Duration
	// SweepInterval is the session eviction cadence. Defaults to one minute.
	SweepInterval time.Duration
}

// App is the assembled service.
type App struct {
	cfg      Config
	store    *store.Store
	sessions *session.Store
	limiter  *ratelimit.Limiter
	router   *dialogue.Router
	server   *webhook.Server
	notifier audit.Notifier
}

// New builds the full object graph. The vessel catalog is loaded here, once:
// fleet-data API first, then the SQLite snapshot, then the YAML file.
func New(cfg Config) (*App, error) {
	if cfg.FleetData.BaseURL == "" {
		return nil, fmt.Errorf("fleet-data base URL is required")
	}

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var notifier audit.Notifier = audit.NopNotifier{}
	if cfg.OpsRoomID != "" && cfg.Matrix.Homeserver != "" {
		mc, err := matrix.New(cfg.Matrix)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("matrix client: %w", err)
		}
		notifier = audit.NewMatrixNotifier(mc, cfg.OpsRoomID)
		slog.Info("ops-room notifications enabled", "room", cfg.OpsRoomID)
	}

	fleet := fleetdata.New(cfg.FleetData)

	dir, err := loadDirectory(context.Background(), cfg, fleet, st, notifier)
	if err != nil {
		st.Close()
		return nil, err
	}
	slog.Info("vessel directory loaded", "vessels", dir.Len())

	sessions := session.NewStore(cfg.SweepInterval)

	var sender delivery.Sender = delivery.NopSender{}
	if cfg.Push.Endpoint != "" {
		sender = delivery.NewPushSender(cfg.Push)
	}

	limiter := ratelimit.New(cfg.RateLimit, cfg.RateWindow)

	router := dialogue.New(dialogue.Config{
		Directory:  dir,
		Limiter:    limiter,
		Sessions:   sessions,
		Intents:    nlp.New(cfg.NLP),
		Fleet:      fleet,
		Delivery:   sender,
		Notifier:   notifier,
		Recorder:   st,
		SessionTTL: cfg.SessionTTL,
	})

	app := &App{
		cfg:      cfg,
		store:    st,
		sessions: sessions,
		limiter:  limiter,
		router:   router,
		notifier: notifier,
	}
	app.server = webhook.New(cfg.HTTPAddr, router.HandleInbound)
	return app, nil
}

// loadDirectory tries the catalog sources in preference order. Fallbacks
// are reported to the ops room so a stale snapshot does not go unnoticed.
func loadDirectory(ctx context.Context, cfg Config, fleet *fleetdata.Client, st *store.Store, notifier audit.Notifier) (*directory.Directory, error) {
	records, err := fleet.Catalog(ctx)
	if err == nil {
		if saveErr := st.SaveCatalog(ctx, records); saveErr != nil {
			slog.Warn("failed to refresh catalog snapshot", "err", saveErr)
		}
		return directory.New(records), nil
	}
	slog.Warn("catalog fetch from fleet-data API failed", "err", err)

	if records, snapErr := st.LoadCatalog(ctx); snapErr == nil {
		notifier.Notify(ctx, audit.Event{
			Kind:    audit.KindCatalogFallback,
			Message: "fleet-data API unreachable, serving catalog from SQLite snapshot",
		})
		return directory.New(records), nil
	}

	if cfg.CatalogPath != "" {
		records, fileErr := directory.LoadCatalogFile(cfg.CatalogPath)
		if fileErr != nil {
			return nil, fmt.Errorf("all catalog sources failed: api: %w; file: %v", err, fileErr)
		}
		notifier.Notify(ctx, audit.Event{
			Kind:    audit.KindCatalogFallback,
			Message: "fleet-data API unreachable, serving catalog from file " + cfg.CatalogPath,
		})
		return directory.New(records), nil
	}

	return nil, fmt.Errorf("load catalog: %w", err)
}

// Run starts the background sweeps and the webhook server, then blocks
// until SIGINT/SIGTERM or a fatal server error.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.sessions.StartSweeper(ctx)
	a.limiter.StartPruner(ctx, a.cfg.SweepInterval)
	errCh := a.server.Start()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
	}
}

// Stop releases all resources. Safe to call after Run returns.
func (a *App) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Stop(shutdownCtx); err != nil {
		slog.Warn("webhook server shutdown", "err", err)
	}
	a.sessions.StopSweeper()
	a.limiter.StopPruner()
	if err := a.store.Close(); err != nil {
		slog.Warn("store close", "err", err)
	}
}
