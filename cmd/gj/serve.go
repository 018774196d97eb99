package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/osmauxi/gjRepository/pkg/config"
	"github.com/osmauxi/gjRepository/pkg/game/mask"
	"github.com/osmauxi/gjRepository/pkg/journal"
	"github.com/osmauxi/gjRepository/pkg/session"
	"github.com/osmauxi/gjRepository/pkg/transport"
)

// sessionTransport picks the ingress that carries the session. ENet and
// Redis each number their own participants, so only one may be enabled;
// without either, participants connect over the web port.
func sessionTransport(ctx context.Context, ingress config.ServerIngress) (transport.Transport, *transport.WebSocketServer, error) {
	if ingress.ENet.Enabled && ingress.Redis.Enabled {
		return nil, nil, fmt.Errorf("enable at most one of the enet and redis ingresses")
	}

	switch {
	case ingress.ENet.Enabled:
		t, err := transport.ListenENet(ctx, ingress.ENet.Port, ingress.ENet.MaxPeers)
		return t, nil, err
	case ingress.Redis.Enabled:
		client := redis.NewClient(&redis.Options{Addr: ingress.Redis.Address})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", ingress.Redis.Address, err)
		}
		t, err := transport.NewRedisServer(ctx, client, ingress.Redis.Session)
		return t, nil, err
	case ingress.Web.Enabled:
		ws := transport.NewWebSocketServer()
		return ws, ws, nil
	}

	return nil, nil, fmt.Errorf("no ingress is enabled")
}

func serveCommand(configs []string, bot string) error {
	cfg, err := config.Process(configs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	serverConfig := cfg.Server
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t, ws, err := sessionTransport(ctx, serverConfig.Ingress)
	if err != nil {
		return err
	}
	defer t.Close()

	var options []session.ServerOption
	if bot != "" {
		options = append(options, session.WithLocal(session.NewWander(0, mask.Parse(bot))))
	}

	if serverConfig.JournalPath != "" {
		j, err := journal.Open(serverConfig.JournalPath, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		defer j.Close()
		options = append(options, session.WithJournal(j))
	}

	server := session.NewServer(cfg, t, options...)

	errc := make(chan error, 2)
	go func() {
		errc <- server.Run(ctx)
	}()

	if serverConfig.Ingress.Web.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/api/entities", server.Views())
		if ws != nil {
			mux.Handle("/ws/", ws)
		}

		httpServer := &http.Server{
			Addr:    fmt.Sprintf("0.0.0.0:%d", serverConfig.Ingress.Web.Port),
			Handler: mux,
		}
		defer httpServer.Shutdown(context.Background())

		go func() {
			errc <- httpServer.ListenAndServe()
		}()
		log.Info().Int("port", serverConfig.Ingress.Web.Port).Msg("listening on http")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("failed to serve: %v", err)
			return err
		}
	case sig := <-sigs:
		log.Printf("terminating: %v", sig)
	}

	return nil
}
