// Command netsweep runs the network discovery server. Subcommands:
//
//	netsweep sweep [CIDR...]   one-shot sweep
//	netsweep backup [-o file]  archive database and config
//	netsweep restore ARCHIVE   restore an archive
//	netsweep version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/internal/config"
	"github.com/HerbHall/netsweep/internal/discovery"
	"github.com/HerbHall/netsweep/internal/event"
	"github.com/HerbHall/netsweep/internal/mqtt"
	"github.com/HerbHall/netsweep/internal/registry"
	"github.com/HerbHall/netsweep/internal/server"
	"github.com/HerbHall/netsweep/internal/snapshot"
	"github.com/HerbHall/netsweep/internal/store"
	"github.com/HerbHall/netsweep/internal/version"
	"github.com/HerbHall/netsweep/internal/ws"
	"github.com/HerbHall/netsweep/pkg/plugin"
)

func main() {
	// Subcommand dispatch (before flag.Parse).
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Println(version.Info())
			return
		case "sweep":
			os.Exit(runSweep(os.Args[2:]))
		case "backup":
			os.Exit(runBackup(os.Args[2:]))
		case "restore":
			os.Exit(runRestore(os.Args[2:]))
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	if err := serve(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "netsweep: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration, builds the logger and opens the database.
func setup(configPath string) (*viper.Viper, *zap.Logger, *store.SQLiteStore, error) {
	v, err := server.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := config.NewLogger(v)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("component", "config"), zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults", zap.String("component", "config"))
	}

	dbPath := v.GetString("database.path")
	db, err := store.New(dbPath)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	if err := db.CheckVersion(context.Background(), version.Short()); err != nil {
		_ = db.Close()
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	logger.Info("database initialized", zap.String("component", "database"), zap.String("path", dbPath))
	return v, logger, db, nil
}

func serve(configPath string) error {
	v, logger, db, err := setup(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer db.Close()

	logger.Info("netsweep server starting", zap.String("version", version.Short()))

	bus := event.NewBus(logger.Named("event"))
	reg := registry.New(logger.Named("registry"))

	modules := []plugin.Plugin{
		discovery.New(),
		snapshot.New(nil),
		mqtt.New(),
	}
	for _, m := range modules {
		if err := reg.Register(m); err != nil {
			return fmt.Errorf("failed to register plugin: %w", err)
		}
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("plugin validation failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  config.ForPlugin(v, name),
			Logger:  logger.Named(name),
			Store:   db,
			Bus:     bus,
			Plugins: reg,
		}
	}); err != nil {
		return fmt.Errorf("failed to initialize plugins: %w", err)
	}
	if err := reg.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start plugins: %w", err)
	}

	wsHandler := ws.NewHandler(bus, v.GetStringSlice("server.ws_origins"), logger.Named("ws"))
	defer wsHandler.Close()

	srvCfg := server.Config{Host: v.GetString("server.host"), Port: v.GetInt("server.port")}
	srv := server.New(server.Options{
		Addr:    srvCfg.Addr(),
		Plugins: reg,
		Logger:  logger.Named("server"),
		Ready: func(ctx context.Context) error {
			return db.Ping(ctx)
		},
		RateLimitRPS:   v.GetFloat64("server.rate_limit_rps"),
		RateLimitBurst: v.GetInt("server.rate_limit_burst"),
		Extra:          []server.RouteRegistrar{wsHandler},
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	logger.Info("netsweep server ready", zap.String("addr", srvCfg.Addr()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	var serveErr error
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case serveErr = <-errCh:
		logger.Error("server stopped unexpectedly", zap.Error(serveErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("server shutdown error", zap.Error(err))
	}
	reg.StopAll(shutdownCtx)

	logger.Info("netsweep server stopped")
	return serveErr
}
