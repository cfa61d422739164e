package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dentops/chairside/internal/auth"
	"github.com/dentops/chairside/internal/config"
	"github.com/dentops/chairside/internal/connectivity"
	"github.com/dentops/chairside/internal/engine"
	"github.com/dentops/chairside/internal/logging"
	"github.com/dentops/chairside/internal/remote"
	"github.com/dentops/chairside/internal/remote/gormstore"
	"github.com/dentops/chairside/internal/service"
	"github.com/dentops/chairside/internal/store"
)

// app wires the full stack for one command invocation: config, local cache,
// canonical store, connectivity monitor, sync engine, and auth resolver.
type app struct {
	cfg       *config.Config
	local     *store.Store
	canonical remote.Store
	identity  remote.IdentityProvider
	monitor   *connectivity.Monitor
	engine    *engine.Engine
	resolver  *auth.Resolver
	logger    *log.Logger
}

// openApp loads configuration and connects every layer. The caller must call
// Close when done.
func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(logging.Options{
		Prefix:     "[chairside] ",
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})

	local, err := store.Open(cfg.CachePath, logger)
	if err != nil {
		return nil, err
	}

	var (
		canonical remote.Store
		identity  remote.IdentityProvider
		prober    connectivity.Prober
	)
	if cfg.RemoteDSN == "" {
		// Demo mode: in-memory canonical store, useful for trying the
		// tool without a server.
		mem := remote.NewMemory()
		canonical, identity = mem, mem
		prober = connectivity.ProberFunc(func(context.Context) error {
			if !mem.Online() {
				return remote.ErrUnavailable
			}
			return nil
		})
		logger.Println("No remote_dsn configured, using in-memory canonical store (demo mode)")
	} else {
		gs, err := gormstore.Open(cfg.RemoteDSN, cfg.JWTSecret)
		if err != nil {
			_ = local.Close()
			return nil, fmt.Errorf("failed to connect canonical store: %w", err)
		}
		canonical, identity, prober = gs, gs, gs
	}

	monitorCfg := connectivity.DefaultConfig()
	monitorCfg.ProbeInterval = cfg.ProbeInterval
	monitorCfg.Logger = logger
	monitor := connectivity.NewMonitor(prober, monitorCfg)

	eng := engine.New(local, canonical, logger)
	resolver := auth.NewResolver(local, identity, monitor.Online, cfg.JWTSecret, logger)

	return &app{
		cfg:       cfg,
		local:     local,
		canonical: canonical,
		identity:  identity,
		monitor:   monitor,
		engine:    eng,
		resolver:  resolver,
		logger:    logger,
	}, nil
}

// Close releases the cache. The monitor is stopped only if it was started.
func (a *app) Close() {
	if err := a.local.Close(); err != nil {
		a.logger.Printf("Warning: failed to close cache: %v", err)
	}
}

// deps builds the shared dependency set for an entity service.
func (a *app) deps(prefix string) service.Deps {
	return service.Deps{
		Local:  a.local,
		Remote: a.canonical,
		Online: a.monitor.Online,
		Logger: log.New(a.logger.Writer(), prefix, log.LstdFlags),
	}
}

// sessionToken reads the saved session token, empty when not logged in.
func (a *app) sessionToken() string {
	data, err := os.ReadFile(a.cfg.SessionFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// saveSessionToken persists the session token for later invocations.
func (a *app) saveSessionToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(a.cfg.SessionFile), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(a.cfg.SessionFile, []byte(token), 0600); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
