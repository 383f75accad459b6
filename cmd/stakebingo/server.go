package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/lox/stakebingo/cmd/stakebingo/shared"
	"github.com/lox/stakebingo/internal/server"
)

// ServerCmd runs the room server. Flags override the config file.
type ServerCmd struct {
	Config      string `kong:"short='c',default='stakebingo.hcl',help='Path to HCL configuration file'"`
	Addr        string `kong:"short='a',help='Server address host:port (overrides config)'"`
	LogLevel    string `kong:"short='l',help='Log level: debug, info, warn or error (overrides config)'"`
	Debug       bool   `kong:"help='Enable debug logging'"`
	AdminSecret string `kong:"env='STAKEBINGO_ADMIN_SECRET',help='Secret for the admin endpoints (overrides config)'"`
	DSN         string `kong:"env='STAKEBINGO_DATABASE_URL',help='Postgres DSN; selects the postgres wallet (overrides config)'"`
}

func (c *ServerCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if err := c.applyOverrides(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := shared.SetupLogger(cfg.Server.LogLevel, c.Debug)
	ctx := shared.SetupSignalHandler(logger)

	app, err := server.NewApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}

	logger.Info("Starting stakebingo server",
		"version", version,
		"addr", cfg.GetServerAddress(),
		"stakes", cfg.Game.Stakes,
		"min_players", cfg.Game.MinPlayers,
		"countdown_seconds", cfg.Game.CountdownSeconds,
		"wallet", cfg.Wallet.Driver,
		"auth", cfg.Auth.Mode,
		"history", cfg.History.Dir != "")

	return app.Run(ctx)
}

func (c *ServerCmd) applyOverrides(cfg *server.Config) error {
	if c.Addr != "" {
		host, port, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return fmt.Errorf("invalid --addr %q: %w", c.Addr, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid --addr port %q: %w", port, err)
		}
		cfg.Server.Address = host
		cfg.Server.Port = p
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.AdminSecret != "" {
		cfg.Server.AdminSecret = c.AdminSecret
	}
	if c.DSN != "" {
		cfg.Wallet.Driver = server.WalletDriverPostgres
		cfg.Wallet.DSN = c.DSN
	}
	return nil
}
