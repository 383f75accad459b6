package server

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/stakebingo/internal/room"
)

// Config represents the complete server configuration
type Config struct {
	Server  ServerSettings
	Game    GameSettings
	Wallet  WalletSettings
	Auth    AuthSettings
	History HistorySettings
}

// fileConfig mirrors Config with every block optional.
type fileConfig struct {
	Server  *ServerSettings  `hcl:"server,block"`
	Game    *GameSettings    `hcl:"game,block"`
	Wallet  *WalletSettings  `hcl:"wallet,block"`
	Auth    *AuthSettings    `hcl:"auth,block"`
	History *HistorySettings `hcl:"history,block"`
}

// ServerSettings contains listener and transport configuration
type ServerSettings struct {
	Address     string `hcl:"address,optional"`
	Port        int    `hcl:"port,optional"`
	LogLevel    string `hcl:"log_level,optional"`
	AdminSecret string `hcl:"admin_secret,optional"`
	// RateLimit is the sustained number of inbound websocket messages per
	// second allowed on one connection.
	RateLimit float64 `hcl:"rate_limit,optional"`
	RateBurst int     `hcl:"rate_burst,optional"`
}

// GameSettings defines the rules shared by every stake room
type GameSettings struct {
	Stakes           []int64 `hcl:"stakes,optional"`
	MinPlayers       int     `hcl:"min_players,optional"`
	CountdownSeconds int     `hcl:"countdown_seconds,optional"`
	CallIntervalMs   int     `hcl:"call_interval_ms,optional"`
	// Zero disables the timer; unset takes the default.
	ResetGraceSeconds        *int `hcl:"reset_grace_seconds,optional"`
	DisconnectTimeoutSeconds *int `hcl:"disconnect_timeout_seconds,optional"`
	RetainTickets            bool `hcl:"retain_tickets,optional"`
	SweepIntervalSeconds     int  `hcl:"sweep_interval_seconds,optional"`
}

// WalletSettings selects and tunes the ledger
type WalletSettings struct {
	Driver          string `hcl:"driver,optional"`
	DSN             string `hcl:"dsn,optional"`
	Workers         int    `hcl:"workers,optional"`
	MaxBackoffMs    int    `hcl:"max_backoff_ms,optional"`
	StartingBalance int64  `hcl:"starting_balance,optional"`
}

// AuthSettings selects how websocket clients identify themselves
type AuthSettings struct {
	Mode      string `hcl:"mode,optional"`
	JWTSecret string `hcl:"jwt_secret,optional"`
	URL       string `hcl:"url,optional"`
}

// HistorySettings configures the settlement archive. An empty Dir disables it.
type HistorySettings struct {
	Dir string `hcl:"dir,optional"`
}

const (
	WalletDriverMemory   = "memory"
	WalletDriverPostgres = "postgres"

	AuthModeNone = "none"
	AuthModeJWT  = "jwt"
	AuthModeHTTP = "http"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads server configuration from an HCL file. A missing file
// yields the defaults.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, nil, &fc)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	cfg := &Config{}
	if fc.Server != nil {
		cfg.Server = *fc.Server
	}
	if fc.Game != nil {
		cfg.Game = *fc.Game
	}
	if fc.Wallet != nil {
		cfg.Wallet = *fc.Wallet
	}
	if fc.Auth != nil {
		cfg.Auth = *fc.Auth
	}
	if fc.History != nil {
		cfg.History = *fc.History
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 20
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 40
	}

	d := room.DefaultConfig(0)
	if len(c.Game.Stakes) == 0 {
		c.Game.Stakes = []int64{10, 20, 50, 100}
	}
	if c.Game.MinPlayers == 0 {
		c.Game.MinPlayers = d.MinPlayers
	}
	if c.Game.CountdownSeconds == 0 {
		c.Game.CountdownSeconds = d.CountdownSeconds
	}
	if c.Game.CallIntervalMs == 0 {
		c.Game.CallIntervalMs = int(d.CallInterval / time.Millisecond)
	}
	if c.Game.ResetGraceSeconds == nil {
		v := int(d.ResetGrace / time.Second)
		c.Game.ResetGraceSeconds = &v
	}
	if c.Game.DisconnectTimeoutSeconds == nil {
		v := int(d.DisconnectTimeout / time.Second)
		c.Game.DisconnectTimeoutSeconds = &v
	}
	if c.Game.SweepIntervalSeconds == 0 {
		c.Game.SweepIntervalSeconds = 60
	}

	if c.Wallet.Driver == "" {
		c.Wallet.Driver = WalletDriverMemory
	}
	if c.Wallet.Workers == 0 {
		c.Wallet.Workers = 4
	}
	if c.Wallet.MaxBackoffMs == 0 {
		c.Wallet.MaxBackoffMs = 30000
	}
	if c.Wallet.StartingBalance == 0 {
		c.Wallet.StartingBalance = 1000
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthModeNone
	}
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 1 {
		return fmt.Errorf("rate limit must be non-negative with a burst of at least 1")
	}

	seen := make(map[int64]bool, len(c.Game.Stakes))
	for _, stake := range c.Game.Stakes {
		if stake <= 0 {
			return fmt.Errorf("stake %d: must be positive", stake)
		}
		if seen[stake] {
			return fmt.Errorf("stake %d: listed twice", stake)
		}
		seen[stake] = true
	}
	if c.Game.MinPlayers < 1 {
		return fmt.Errorf("min players must be at least 1")
	}
	if c.Game.CountdownSeconds < 1 {
		return fmt.Errorf("countdown must be at least one second")
	}
	if c.Game.CallIntervalMs < 1 {
		return fmt.Errorf("call interval must be positive")
	}
	if *c.Game.ResetGraceSeconds < 0 || *c.Game.DisconnectTimeoutSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	switch c.Wallet.Driver {
	case WalletDriverMemory:
	case WalletDriverPostgres:
		if c.Wallet.DSN == "" {
			return fmt.Errorf("wallet: postgres driver requires a dsn")
		}
	default:
		return fmt.Errorf("wallet: unknown driver %s", c.Wallet.Driver)
	}
	if c.Wallet.Workers < 1 {
		return fmt.Errorf("wallet: workers must be at least 1")
	}
	if c.Wallet.StartingBalance < 0 {
		return fmt.Errorf("wallet: starting balance must not be negative")
	}

	switch c.Auth.Mode {
	case AuthModeNone:
	case AuthModeJWT:
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth: jwt mode requires jwt_secret")
		}
	case AuthModeHTTP:
		if c.Auth.URL == "" {
			return fmt.Errorf("auth: http mode requires url")
		}
	default:
		return fmt.Errorf("auth: unknown mode %s", c.Auth.Mode)
	}

	return nil
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// RoomTemplate returns the per-room rules; Stake is filled in per room.
func (c *Config) RoomTemplate() room.Config {
	return room.Config{
		MinPlayers:        c.Game.MinPlayers,
		CountdownSeconds:  c.Game.CountdownSeconds,
		CallInterval:      time.Duration(c.Game.CallIntervalMs) * time.Millisecond,
		ResetGrace:        time.Duration(*c.Game.ResetGraceSeconds) * time.Second,
		DisconnectTimeout: time.Duration(*c.Game.DisconnectTimeoutSeconds) * time.Second,
		RetainTickets:     c.Game.RetainTickets,
	}
}

// SweepInterval is how often empty rooms are disposed of.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Game.SweepIntervalSeconds) * time.Second
}

// MaxBackoff caps the wallet retry delay.
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.Wallet.MaxBackoffMs) * time.Millisecond
}
