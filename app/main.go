package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/sports-comb/app/api"
	"github.com/lysyi3m/sports-comb/app/cfg"
	"github.com/lysyi3m/sports-comb/app/database"
	"github.com/lysyi3m/sports-comb/app/feed"
	"github.com/lysyi3m/sports-comb/app/locks"
	"github.com/lysyi3m/sports-comb/app/source"
	"github.com/lysyi3m/sports-comb/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// --help
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Sports Comb", "version", appCfg.Version, "timezone", appCfg.Timezone)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	configCache := feed.NewConfigCache(appCfg.ConfigDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load configuration files", "dir", appCfg.ConfigDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded", "sources", len(configCache.GetSources()), "topics", configCache.GetTopicCount())

	topicRepo := database.NewTopicRepository(db)
	sectionRepo := database.NewSectionRepository(db)
	articleRepo := database.NewArticleRepository(db)
	runRepo := database.NewRunRepository(db)

	httpClient := &http.Client{Timeout: 30 * time.Second}

	registry := source.NewRegistry(configCache, feed.NewFilterer())
	registry.Register("rss", source.NewRSSFetcher(httpClient, feed.NewParser(), appCfg.UserAgent))
	registry.Register("html", source.NewHTMLFetcher(httpClient, feed.NewContentExtractor(), appCfg.UserAgent, appCfg.RequestDelay()))

	lockManager := locks.NewManager(appCfg.LockStaleAfterDuration())
	refresher := tasks.NewSectionRefresher(registry, lockManager, articleRepo, sectionRepo)

	slog.Info("Starting scheduler", "workers", appCfg.WorkerCount, "interval", appCfg.SchedulerTick())
	scheduler := tasks.NewScheduler(configCache, refresher, topicRepo, sectionRepo, articleRepo, runRepo)
	scheduler.Start()

	handler := api.NewHandler(configCache, topicRepo, sectionRepo, articleRepo, runRepo, refresher, lockManager, scheduler)
	router := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	scheduler.Stop()

	slog.Info("Shutdown complete")
}
