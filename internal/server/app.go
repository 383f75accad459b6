package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/stakebingo/internal/auth"
	"github.com/lox/stakebingo/internal/history"
	"github.com/lox/stakebingo/internal/room"
	"github.com/lox/stakebingo/internal/wallet"
)

const drainTimeout = 10 * time.Second

// App wires the registry, wallet, archive and server from a Config.
type App struct {
	Server     *Server
	Service    *GameService
	Registry   *room.Registry
	Dispatcher *wallet.Dispatcher
	Archive    *history.Archive
	Ledger     wallet.Ledger

	logger      *log.Logger
	closeLedger func()
}

// NewApp builds every component. A nil clock uses the real one.
func NewApp(ctx context.Context, cfg *Config, logger *log.Logger, clock quartz.Clock) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if clock == nil {
		clock = quartz.NewReal()
	}

	app := &App{logger: logger, closeLedger: func() {}}

	switch cfg.Wallet.Driver {
	case WalletDriverPostgres:
		pg, err := wallet.OpenPostgres(ctx, cfg.Wallet.DSN)
		if err != nil {
			return nil, err
		}
		app.Ledger = pg
		app.closeLedger = pg.Close
	default:
		app.Ledger = wallet.NewMemory()
	}

	var validator auth.Validator
	switch cfg.Auth.Mode {
	case AuthModeJWT:
		validator = auth.NewJWTValidator(cfg.Auth.JWTSecret)
	case AuthModeHTTP:
		validator = auth.NewHTTPValidator(cfg.Auth.URL, cfg.Server.AdminSecret)
	default:
		validator = auth.NewNoopValidator()
	}

	app.Dispatcher = wallet.NewDispatcher(app.Ledger, wallet.DispatcherConfig{
		Workers:    cfg.Wallet.Workers,
		MaxBackoff: cfg.MaxBackoff(),
		Clock:      clock,
		Logger:     logger,
	})

	app.Server = NewServer(logger,
		WithAddr(cfg.GetServerAddress()),
		WithAdminSecret(cfg.Server.AdminSecret),
		WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
	)

	opts := []room.Option{
		room.WithPayments(app.Dispatcher),
		room.WithSubscriber(app.Server),
	}
	if cfg.History.Dir != "" {
		app.Archive = history.New(cfg.History.Dir, logger)
		opts = append(opts, room.WithSubscriber(app.Archive))
	}

	app.Registry = room.NewRegistry(room.RegistryConfig{
		Stakes:        cfg.Game.Stakes,
		Room:          cfg.RoomTemplate(),
		SweepInterval: cfg.SweepInterval(),
		Clock:         clock,
		Logger:        logger,
	}, opts...)
	app.Dispatcher.SetFailureHandler(app.Registry.OnPaymentFailure)

	app.Service = NewGameService(GameServiceConfig{
		Registry:        app.Registry,
		Validator:       validator,
		Ledger:          app.Ledger,
		StartingBalance: cfg.Wallet.StartingBalance,
		Logger:          logger,
	})
	app.Server.SetGameService(app.Service)

	return app, nil
}

// Run serves until ctx is cancelled. On shutdown the rooms are closed first
// so their refunds reach the wallet, then the wallet queue and the archive
// are drained.
func (a *App) Run(ctx context.Context) error {
	bg, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBackground()

	back, bctx := errgroup.WithContext(bg)
	back.Go(func() error { return a.Dispatcher.Run(bctx) })
	if a.Archive != nil {
		back.Go(func() error { return a.Archive.Run(bctx) })
	}

	front, fctx := errgroup.WithContext(ctx)
	front.Go(func() error { return a.Server.Run(fctx) })
	front.Go(func() error { return a.Registry.RunSweeper(fctx) })
	frontErr := front.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := a.Registry.Close(closeCtx); err != nil {
		a.logger.Warn("Failed to close rooms", "error", err)
	}
	a.drainWallet(closeCtx)

	stopBackground()
	backErr := back.Wait()
	a.closeLedger()
	return errors.Join(frontErr, backErr)
}

func (a *App) drainWallet(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for a.Dispatcher.Pending() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			a.logger.Warn("Wallet operations still pending at shutdown", "pending", a.Dispatcher.Pending())
			return
		}
	}
}
