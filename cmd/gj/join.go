package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/osmauxi/gjRepository/pkg/config"
	"github.com/osmauxi/gjRepository/pkg/game/mask"
	"github.com/osmauxi/gjRepository/pkg/session"
	"github.com/osmauxi/gjRepository/pkg/transport"
)

func dial(ctx context.Context, cfg *config.Config, address string) (transport.Transport, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	switch u.Scheme {
	case "ws", "wss":
		return transport.DialWebSocket(ctx, address)
	case "enet":
		port, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid enet port in %q", address)
		}
		return transport.DialENet(ctx, u.Hostname(), port)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: u.Host})
		return transport.NewRedisClient(ctx, client, cfg.Server.Ingress.Redis.Session)
	}

	return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
}

func joinCommand() error {
	cfg, err := config.Process(CLI.Join.Configs)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t, err := dial(ctx, cfg, CLI.Join.Address)
	if err != nil {
		return err
	}
	defer t.Close()

	client := session.NewClient(cfg, t, session.NewWander(CLI.Join.Seed, mask.Parse(CLI.Join.Mask)))

	errc := make(chan error, 1)
	go func() {
		errc <- client.Run(ctx)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	status := time.NewTicker(2 * time.Second)
	defer status.Stop()

	for {
		select {
		case err := <-errc:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case sig := <-sigs:
			log.Printf("terminating: %v", sig)
			cancel()
		case <-status.C:
			logOwn(client.Views().List())
		}
	}
}

func logOwn(views []session.View) {
	for _, view := range views {
		if view.Role != "owner" {
			continue
		}
		log.Info().
			Uint32("entity", view.Entity).
			Str("tag", view.Tag).
			Str("mask", view.Mask).
			Interface("position", view.Position).
			Int("others", len(views)-1).
			Msg("status")
		return
	}
	log.Info().Msg("waiting to join")
}
