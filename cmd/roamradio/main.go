package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"roamradio/internal/api"
	"roamradio/pkg/catalog"
	"roamradio/pkg/config"
	"roamradio/pkg/db"
	"roamradio/pkg/location"
	"roamradio/pkg/location/gpsd"
	"roamradio/pkg/location/mockgps"
	"roamradio/pkg/logging"
	"roamradio/pkg/nowplaying"
	"roamradio/pkg/playback"
	"roamradio/pkg/playback/beepstream"
	"roamradio/pkg/probe"
	"roamradio/pkg/selector"
	"roamradio/pkg/store"
	"roamradio/pkg/version"
)

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault("configs/roamradio.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated: configs/roamradio.yaml")
		return
	}

	if err := run(context.Background(), "configs/roamradio.yaml"); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Optional .env for overrides like ROAMRADIO_GPSD_ADDR.
	_ = godotenv.Load()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("RoamRadio Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if retention := time.Duration(appCfg.DB.HistoryRetention); retention > 0 {
		if err := dbConn.PruneHistory(retention); err != nil {
			slog.Warn("Failed to prune play history", "error", err)
		}
	}

	cat, err := catalog.Load(appCfg.Catalog)
	if err != nil {
		return fmt.Errorf("failed to load station catalog: %w", err)
	}
	slog.Info("Catalog loaded", "stations", cat.Count(), "path", appCfg.Catalog.Path)

	provider, err := initProvider(appCfg)
	if err != nil {
		return err
	}

	tracker := location.New(provider, appCfg.Location)
	tracker.Start(ctx)
	defer tracker.Stop()

	sel := selector.New(cat, appCfg.Selector)

	backend := beepstream.New(appCfg.Playback)
	engine := playback.New(backend, playback.NoopSession{}, appCfg.Playback)
	engine.Start(ctx)
	engine.SetVolume(st.Volume(ctx, appCfg.Playback.Volume))

	presenter, hub := initPresenter(engine)
	defer hub.Close()

	wireStatePersistence(ctx, engine, st)

	// Restore last station so manual play works before the first fix.
	if id, ok := st.LastStation(ctx); ok {
		if known := cat.Get(id); known != nil {
			slog.Info("Restored last station", "station", known.ID)
			engine.PlayStation(*known)
		}
	}

	// Startup Probes
	probes := []probe.Probe{
		probe.File("Station catalog", appCfg.Catalog.Path, true),
	}
	if appCfg.Location.Provider == "gpsd" || appCfg.Location.Provider == "" {
		// gpsd may come up later; its provider reconnects on its own.
		probes = append(probes, probe.TCP("gpsd", appCfg.Gpsd().Address, false))
	}
	if err := probe.AnalyzeResults(probe.Run(ctx, probes)); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	tracker.RequestPermission()
	if msg := tracker.LastError(); msg != "" {
		slog.Warn("Location permission not granted", "error", msg)
	}

	go selectionLoop(ctx, tracker, sel, engine)

	return runServer(ctx, appCfg, engine, tracker, sel, cat, st, presenter, hub)
}

func initDB(appCfg *config.Config) (*db.DB, *store.SQLiteStore, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func initProvider(appCfg *config.Config) (location.Provider, error) {
	switch appCfg.Location.Provider {
	case "mock":
		slog.Info("Location: using simulated position provider")
		return mockgps.New(appCfg.Location.Mock), nil
	case "gpsd", "":
		slog.Info("Location: using gpsd", "addr", appCfg.Gpsd().Address)
		return gpsd.New(appCfg.Gpsd()), nil
	default:
		return nil, fmt.Errorf("unknown location provider %q", appCfg.Location.Provider)
	}
}

func initPresenter(engine *playback.Engine) (*nowplaying.Presenter, *api.Hub) {
	var presenter *nowplaying.Presenter
	hub := api.NewHub(func(cmd string) error {
		return presenter.HandleCommand(cmd)
	})
	presenter = nowplaying.New(hub, engine)

	engine.Subscribe(presenter.HandleStatus)
	engine.Subscribe(hub.PublishStatus)
	return presenter, hub
}

// wireStatePersistence records station plays and the active station, so the
// next run can resume where this one left off.
func wireStatePersistence(ctx context.Context, engine *playback.Engine, st *store.SQLiteStore) {
	var lastRecorded string
	engine.Subscribe(func(status playback.Status) {
		if status.State != playback.StatePlaying || status.Station == nil {
			return
		}
		if status.Station.ID == lastRecorded {
			return
		}
		lastRecorded = status.Station.ID
		if err := st.RecordPlay(ctx, status.Station.ID, status.Station.Name); err != nil {
			slog.Error("Failed to record play history", "error", err)
		}
		if err := st.SetLastStation(ctx, status.Station.ID); err != nil {
			slog.Error("Failed to persist last station", "error", err)
		}
	})
}

// selectionLoop feeds accepted position samples through the selector and
// switches the engine when a materially closer station appears.
func selectionLoop(ctx context.Context, tracker *location.Tracker, sel *selector.Selector, engine *playback.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-tracker.Samples():
			if !ok {
				return
			}
			if next := sel.Update(sample); next != nil {
				slog.Info("Switching to nearest station", "station", next.ID)
				engine.PlayStation(*next)
			}
		}
	}
}

func runServer(ctx context.Context, cfg *config.Config, engine *playback.Engine, tracker *location.Tracker, sel *selector.Selector, cat *catalog.Catalog, st *store.SQLiteStore, presenter *nowplaying.Presenter, hub *api.Hub) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewStatusHandler(engine, tracker, sel),
		api.NewStationsHandler(cat),
		api.NewControlHandler(engine, cat, st),
		api.NewHistoryHandler(st),
		hub,
		shutdownFunc,
	)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
