package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raycs13/RealCasino/internal/api"
	"github.com/raycs13/RealCasino/internal/config"
	"github.com/raycs13/RealCasino/internal/db"
	"github.com/raycs13/RealCasino/internal/game"
	"github.com/raycs13/RealCasino/internal/ws"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	store, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db open")
	}
	log.Info("connected to database")

	if err := store.Migrate(cfg.MigrationsDir); err != nil {
		log.WithError(err).Fatal("migrate")
	}
	log.Info("migrations applied")

	hub := ws.NewHub(log)

	engine := game.NewEngine(game.Config{
		GameID:   cfg.GameID,
		Window:   cfg.BetWindow,
		Cooldown: cfg.Cooldown,
	}, store, hub, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewServer(cfg, store, engine, hub, log).Router(),
	}

	go func() {
		log.WithField("port", cfg.Port).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down")

	cancel()
	engine.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
}
