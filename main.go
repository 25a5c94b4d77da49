package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/aidanhq/bandmaster/config"
	"github.com/aidanhq/bandmaster/db"
	"github.com/aidanhq/bandmaster/events"
	"github.com/aidanhq/bandmaster/identity"
	"github.com/aidanhq/bandmaster/migrations"
	"github.com/aidanhq/bandmaster/panel"
	"github.com/aidanhq/bandmaster/session"
	"github.com/aidanhq/bandmaster/spotify"
	"github.com/aidanhq/bandmaster/utils"
)

func main() {

	if err := godotenv.Load(); err != nil {
		fmt.Println(err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.GetLogLevel(),
	}))
	slog.SetDefault(logger)

	if err := cfg.ValidateSpotify(); err != nil {
		slog.Error("Can't start without a usable streaming gateway",
			slog.String("stack", err.Error()),
		)
		os.Exit(1)
	}

	if err := cfg.ValidatePushover(); err != nil {
		slog.Error("Can't start without a usable notifier",
			slog.String("stack", err.Error()),
		)
		os.Exit(1)
	}

	dbPath := cfg.Bandmaster.DbPath
	if dbPath == "" {
		dbPath = "bandmaster.db"
	}

	if utils.GetEnv("RESET_DB", "0") == "1" {
		if err := os.Remove(dbPath); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}

	store, err := db.NewSqliteStore(dbPath)
	if err != nil {
		slog.Error("Failed to open database",
			slog.String("stack", err.Error()),
			slog.String("db_path", dbPath),
		)
		os.Exit(1)
	}

	if err := store.ApplyMigrations(migrations.GetMigrations()); err != nil {
		slog.Error("Failed to apply migrations",
			slog.String("stack", err.Error()),
		)
		os.Exit(1)
	}

	events.Init()

	sessions := session.NewStore()
	resolver := identity.NewResolver(cfg.Bandmaster.OwnerAPIKey, cfg.Bandmaster.OwnerName)
	gateway := spotify.NewClient(cfg.Spotify, store, utils.NewHTTPClient())

	p := panel.New(gateway, sessions, store, resolver, cfg.Bandmaster.OwnerName, cfg.Bandmaster.LogFetchCap)

	scheduler, err := SetupInBackground(cfg, p, gateway, sessions)
	if err != nil {
		slog.Error("Failed to set up scheduler",
			slog.String("stack", err.Error()),
		)
		os.Exit(1)
	}

	if cfg.Bandmaster.BackgroundJobsEnabled {
		scheduler.Start()
		slog.Info("Background jobs have started up in the background.")
	} else {
		slog.Info("Background jobs are disabled.")
	}

	router := RegisterRoutes(http.NewServeMux(), cfg, p)

	slog.Info("Bandmaster is up", slog.String("addr", cfg.Bandmaster.ListenAddr))

	if err := http.ListenAndServe(cfg.Bandmaster.ListenAddr, router); err != nil {
		fmt.Println(err)
		scheduler.Shutdown()
		os.Exit(1)
	}
}
