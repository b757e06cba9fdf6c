package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haukened/zfs-snmpd/internal/zfs/common/clock"
	"github.com/haukened/zfs-snmpd/internal/zfs/common/log"
	"github.com/haukened/zfs-snmpd/internal/zfs/config"
	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
	"github.com/haukened/zfs-snmpd/internal/zfs/gateways/transport"
	"github.com/haukened/zfs-snmpd/internal/zfs/gateways/wire"
	"github.com/haukened/zfs-snmpd/internal/zfs/repos/indexstore"
	"github.com/haukened/zfs-snmpd/internal/zfs/repos/indexstore/bolt"
	"github.com/haukened/zfs-snmpd/internal/zfs/repos/statcache"
	"github.com/haukened/zfs-snmpd/internal/zfs/repos/statsource"
	"github.com/haukened/zfs-snmpd/internal/zfs/services/dispatcher"
	"github.com/haukened/zfs-snmpd/internal/zfs/services/oidspace"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "zfs-snmpd"

	defaultShutdownTimeout = 10 * time.Second
)

// stdin and stdout carry pass_persist traffic; tests replace them.
var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
)

// Application holds all the components of the agent
type Application struct {
	config     *config.AppConfig
	cache      *statcache.Cache
	space      *oidspace.Space
	dispatcher *dispatcher.Dispatcher
	transport  transport.ServerTransport
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	err = log.Configure(cfg.Env, cfg.LogLevel, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.LogLevel,
		"stats_root": cfg.StatsRoot,
		"cache_ttl":  cfg.CacheTTL.String(),
		"root_oid":   cfg.RootOID,
		"transport":  cfg.Transport,
	}, "Starting "+appName)

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Agent failed")
	}

	log.Info(nil, appName+" stopped gracefully")
}

// buildApplication loads the statistics, freezes the identifier space and
// wires the dispatcher to the configured transport.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()

	root, err := domain.ParseOID(cfg.RootOID)
	if err != nil {
		return nil, fmt.Errorf("invalid root OID: %w", err)
	}

	cache := statcache.New(statcache.Options{
		Source: statsource.New(cfg.StatsRoot),
		Clock:  clk,
		TTL:    cfg.CacheTTL,
		Logger: logger,
	})
	if err := cache.Populate(); err != nil {
		return nil, fmt.Errorf("failed to load statistics: %w", err)
	}

	space, err := buildSpace(cfg, root, cache.Snapshot())
	if err != nil {
		return nil, err
	}
	log.Info(map[string]any{
		"root":        root.String(),
		"identifiers": space.Len(),
		"pools":       cache.Pools(),
	}, "Identifier space built")

	disp, err := dispatcher.New(dispatcher.Options{
		Space:         space,
		Values:        cache,
		Clock:         clk,
		Logger:        logger,
		NextCacheSize: cfg.NextCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	t, err := transport.NewTransport(transport.TransportType(cfg.Transport), transport.Options{
		Address:   cfg.Listen,
		Community: cfg.Community,
		Codec:     wire.NewSNMPCodec(logger, 0),
		Logger:    logger,
		In:        stdin,
		Out:       stdout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return &Application{
		config:     cfg,
		cache:      cache,
		space:      space,
		dispatcher: disp,
		transport:  t,
	}, nil
}

// buildSpace assigns identifiers using the persistent registry when one is
// configured. The registry is only needed while building and is closed after.
func buildSpace(cfg *config.AppConfig, root domain.OID, snap domain.Snapshot) (*oidspace.Space, error) {
	var registry indexstore.Registry = indexstore.Sequential{}
	if cfg.IndexDB != "" {
		r, err := bolt.New(cfg.IndexDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open index registry: %w", err)
		}
		registry = r
		log.Info(map[string]any{"path": cfg.IndexDB}, "Using persistent index registry")
	}
	defer func() {
		if err := registry.Close(); err != nil {
			log.Warn(map[string]any{"error": err}, "Error closing index registry")
		}
	}()

	space, err := oidspace.Build(root, snap, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to build identifier space: %w", err)
	}
	return space, nil
}

// Run serves requests until ctx is cancelled or the transport stops. A
// transport error wrapping domain.ErrFatal is returned; end of pass_persist
// input is a normal exit.
func (app *Application) Run(ctx context.Context) error {
	if err := app.transport.Start(ctx, app.dispatcher); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}

	log.Info(map[string]any{
		"address":   app.transport.Address(),
		"transport": app.config.Transport,
	}, "Agent started")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(nil, "Shutdown initiated")
	case err := <-app.transport.Err():
		if !errors.Is(err, io.EOF) {
			runErr = err
		} else {
			log.Info(nil, "Master agent closed the pass_persist channel")
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- app.transport.Stop()
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Warn(map[string]any{"error": err}, "Error during transport shutdown")
		}
	case <-time.After(defaultShutdownTimeout):
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		if runErr == nil {
			runErr = fmt.Errorf("shutdown timeout")
		}
	}

	hits, misses := app.dispatcher.MemoStats()
	log.Debug(map[string]any{
		"refreshes":   app.cache.Stats().Refreshes,
		"memo_hits":   hits,
		"memo_misses": misses,
	}, "Final statistics")

	return runErr
}
