// Package app wires configuration, collaborators and the engine into a
// runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/alerts"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/cex"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/chain"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/config"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/engine"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/metrics"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/perp/sakeperp"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/state"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/state/sqlite"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/timeseries"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/token"
)

// Environment variable names for secrets that never live in the config file.
const (
	envPrivateKey   = "ARBITRAGEUR_PK"
	envCexAPIKey    = "CEX_API_KEY"
	envCexAPISecret = "CEX_API_SECRET"
	envEmailPass    = "EMAIL_PASS"
)

type App struct {
	cfg      *config.Config
	log      *zap.Logger
	client   *chain.EthClient
	store    *sqlite.Store
	recorder *timeseries.Writer
	prom     *metrics.Prometheus
	engine   *engine.Engine
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	privateKey := os.Getenv(envPrivateKey)
	if privateKey == "" {
		return nil, fmt.Errorf("%s is required", envPrivateKey)
	}
	client, err := chain.Dial(ctx, cfg.Chain.Endpoint, privateKey, log)
	if err != nil {
		return nil, fmt.Errorf("dial chain: %w", err)
	}
	venue, err := sakeperp.New(client, cfg.Chain.Contracts)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("bind venue contracts: %w", err)
	}
	ledger, err := token.NewERC20Ledger(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("bind erc20: %w", err)
	}
	cexVenue, err := cex.New(cfg.Cex.Platform, cex.Credentials{
		APIKey:     os.Getenv(envCexAPIKey),
		APISecret:  os.Getenv(envCexAPISecret),
		Subaccount: cfg.Cex.Subaccount,
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open state store: %w", err)
	}

	var prom *metrics.Prometheus
	m := metrics.NewNoop()
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	if pass := os.Getenv(envEmailPass); pass != "" {
		cfg.Email.Pass = pass
	}
	var sender alerts.Sender
	if smtp := alerts.NewSMTPSender(cfg.Email); smtp != nil {
		sender = smtp
	}
	notifier := alerts.NewNotifier(sender, log, m)

	recorder, err := timeseries.New(cfg.Accounting, log)
	if err != nil {
		store.Close()
		client.Close()
		return nil, fmt.Errorf("open accounting writer: %w", err)
	}

	eng := engine.New(engine.Deps{
		Config:     cfg,
		Log:        log,
		Chain:      client,
		Venue:      venue,
		Ledger:     ledger,
		Cex:        cexVenue,
		Trader:     client.Address(),
		Entries:    state.NewEntryStore(store),
		Notifier:   notifier,
		Metrics:    m,
		Recorder:   recorder,
		Supervisor: chain.NewSupervisor(client, cfg.Chain.TxTimeout, cfg.Chain.TxRetries, log),
	})

	return &App{
		cfg:      cfg,
		log:      log,
		client:   client,
		store:    store,
		recorder: recorder,
		prom:     prom,
		engine:   eng,
	}, nil
}

// Run starts the side services and runs cycles until ctx ends.
func (a *App) Run(ctx context.Context) error {
	a.startServices(ctx)
	a.log.Info("arbitrageur running",
		zap.Stringer("trader", a.client.Address()),
		zap.Duration("interval", a.cfg.Interval))
	return a.engine.RunInterval(ctx)
}

// RunOnce executes a single cycle, for cron-style deployments.
func (a *App) RunOnce(ctx context.Context) error {
	a.startServices(ctx)
	return a.engine.RunOnce(ctx)
}

func (a *App) startServices(ctx context.Context) {
	a.recorder.Start(ctx)
	if a.prom != nil {
		server := &http.Server{
			Addr:              a.cfg.Metrics.Listen,
			Handler:           a.prom.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics server failed", zap.Error(err))
			}
		}()
	}
}

func (a *App) Close() {
	if err := a.recorder.Close(); err != nil {
		a.log.Warn("accounting writer close failed", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("state store close failed", zap.Error(err))
	}
	a.client.Close()
}
