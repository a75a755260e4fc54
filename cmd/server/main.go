package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/men4u/cds/internal/auth"
	"github.com/men4u/cds/internal/classify"
	"github.com/men4u/cds/internal/config"
	"github.com/men4u/cds/internal/poller"
	"github.com/men4u/cds/internal/router"
	"github.com/men4u/cds/internal/session"
	"github.com/men4u/cds/internal/upstream"
	"github.com/men4u/cds/internal/ws"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Str("service", "cds").Logger()

	cfg := config.Load()

	store, err := session.NewFileStore(cfg.SessionFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.SessionFile).Msg("failed to open session store")
	}

	policy := classify.ParsePolicy(cfg.ClassifyPolicy)

	client := upstream.NewClient(cfg.UpstreamURL, cfg.LegacyURL)
	flow := auth.NewFlow(client, store, cfg.ResendCooldown)

	// The hub and the poller manager reference each other: room lifecycle
	// drives polling, poll results fan out to rooms. The hub pointer is
	// captured by closure and set before anything runs.
	var hub *ws.Hub

	manager := poller.NewManager(poller.ManagerOptions{
		Feed:     client,
		Store:    store,
		Policy:   policy,
		Interval: cfg.PollInterval,
		Logger:   log.Logger,
		OnSnapshot: func(snap poller.Snapshot) {
			payload, err := json.Marshal(snap)
			if err != nil {
				log.Error().Err(err).Msg("failed to marshal snapshot")
				return
			}
			hub.BroadcastToOutlet(snap.OutletID, ws.Event{Type: ws.EventOrdersSnapshot, Payload: payload})
		},
		OnExpired: func() {
			log.Warn().Msg("upstream session expired, tearing down")
			flow.Expire()
		},
	})

	hub = ws.NewHub(manager.Subscribe, manager.Unsubscribe)
	go hub.Run()

	// Session teardown notifications: every connected display learns the
	// session ended, and why.
	store.Subscribe(func(ev session.Event) {
		if ev.Type != session.EventCleared {
			return
		}
		event := ws.Event{Type: ws.EventSessionEnded}
		if flow.State() == auth.StateExpired {
			event.Type = ws.EventSessionExpired
		}
		hub.BroadcastAll(event)
	})

	if _, ok := store.Get(); ok {
		log.Info().Msg("restored persisted session")
	}

	r := router.New(cfg, store, client, flow, manager, hub, policy)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	manager.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}
