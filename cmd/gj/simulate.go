package main

import (
	"github.com/rs/zerolog/log"

	"github.com/osmauxi/gjRepository/pkg/config"
	"github.com/osmauxi/gjRepository/pkg/game/mask"
	"github.com/osmauxi/gjRepository/pkg/journal"
	"github.com/osmauxi/gjRepository/pkg/session"
	"github.com/osmauxi/gjRepository/pkg/transport"
)

// simulateCommand steps a whole session in lockstep over an in-process hub,
// which makes runs with the same flags reproducible.
func simulateCommand() error {
	cfg, err := config.Process(CLI.Simulate.Configs)
	if err != nil {
		return err
	}

	dropRate := cfg.Server.DropRate
	if CLI.Simulate.DropRate >= 0 {
		dropRate = CLI.Simulate.DropRate
	}

	var (
		serverOptions []session.ServerOption
		clientOptions []session.ClientOption
	)
	if CLI.Simulate.Journal != "" {
		j, err := journal.Open(CLI.Simulate.Journal, "simulate")
		if err != nil {
			return err
		}
		defer j.Close()
		serverOptions = append(serverOptions, session.WithJournal(j))
		clientOptions = append(clientOptions, session.WithClientJournal(j))
	}

	hub := transport.NewHub(dropRate)
	server := session.NewServer(cfg, hub.Server(), serverOptions...)

	clients := make([]*session.Client, CLI.Simulate.Bots)
	for i := range clients {
		bot := session.NewWander(i+1, mask.All[i%len(mask.All)])
		clients[i] = session.NewClient(cfg, hub.Connect(), bot, clientOptions...)
	}

	dt := cfg.Server.FixedStep()
	ticks := int(CLI.Simulate.Seconds / dt)
	log.Info().
		Int("bots", len(clients)).
		Int("ticks", ticks).
		Float64("dropRate", dropRate).
		Str("mode", cfg.Server.Mode).
		Msg("simulating")

	for tick := 0; tick < ticks; tick++ {
		for _, client := range clients {
			client.Poll()
			client.FixedTick(dt)
		}
		server.Poll()
		server.FixedTick(dt)
		server.PresentationTick(dt)
		for _, client := range clients {
			client.Poll()
			client.PresentationTick(dt)
		}
	}

	for _, view := range server.Views().List() {
		log.Info().
			Uint32("entity", view.Entity).
			Str("tag", view.Tag).
			Str("mask", view.Mask).
			Int("health", view.Health).
			Interface("position", view.Position).
			Str("digest", view.Digest).
			Msg("final state")
	}

	for _, client := range clients {
		log.Info().
			Uint32("participant", client.Participant()).
			Int("corrections", client.Corrections()).
			Int("pickups", client.Claimed()).
			Msg("client")
	}
	log.Info().Int("dropped", hub.Dropped()).Msg("done")

	return nil
}
