package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/angelmondragon/rafflepot-backend/internal/bootstrap"
	"github.com/angelmondragon/rafflepot-backend/pkg/outbox"
	"github.com/angelmondragon/rafflepot-backend/pkg/outbox/registry"
)

const serviceKind = "outbox-publisher"

func main() {
	deadLetters := flag.Int("dead-letters", 0, "print the N newest dead letters and exit")
	flag.Parse()

	proc, err := bootstrap.Start(context.Background(), serviceKind)
	if err != nil {
		bootstrap.Fatal(serviceKind, err)
	}
	cfg, logg := proc.Config, proc.Logger

	if *deadLetters > 0 {
		err := printDeadLetters(context.Background(), os.Stdout, outbox.NewDLQRepository(proc.DB.DB()), *deadLetters)
		proc.Must("dead letter listing", err)
		proc.Shutdown(context.Background(), 0)
	}

	pubsubClient, err := proc.PubSub(context.Background())
	proc.Must("pubsub", err)

	catalog, err := registry.NewCatalog(cfg.PubSub)
	proc.Must("event catalog", err)

	sinks := newTopicSinks(pubsubClient)
	proc.Defer("topic sinks", func() error { sinks.stop(); return nil })

	conn := proc.DB.DB()
	relay, err := NewRelay(RelayParams{
		Config: cfg.Outbox,
		Logger: logg,
		DB:     proc.DB,
		PubSub: pubsubClient,
		Rows:   outbox.NewRepository(conn),
		DLQ:    outbox.NewDLQRepository(conn),
		Events: catalog,
		Sinks:  sinks.lookup,
	})
	proc.Must("outbox relay", err)

	ctx, stop := proc.SignalContext(map[string]any{"topics": catalog.Topics()})
	defer stop()
	logg.Info(ctx, "outbox.relay_starting")

	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox.relay_stopped", err)
		proc.Shutdown(ctx, 1)
	}
	logg.Info(ctx, "outbox.relay_drained")
	proc.Shutdown(ctx, 0)
}
