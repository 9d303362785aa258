package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"chatd/bus"
	"chatd/chat"
	"chatd/config"
	"chatd/db"
	"chatd/server"
)

func main() {
	log.SetPrefix("[CHATD] ")
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := db.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	presence := dialBus(cfg)
	svc := chat.New(chat.GatewaysFrom(store), presence)
	srv := server.New(svc, &server.ServerConfig{
		Addr:         cfg.Addr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxLineSize:  cfg.MaxLineSize,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("shutting down: %s", srv.GetStats())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("connections still open after %s: %v", cfg.ShutdownTimeout, err)
		}
		if err := presence.Close(); err != nil {
			log.Printf("close bus: %v", err)
		}
		if _, err := svc.Reset(context.Background()); err != nil {
			log.Printf("%v", err)
		}
		return nil
	})
	return g.Wait()
}

// dialBus connects the configured presence bus. A bus that cannot be
// reached leaves the server running local-only.
func dialBus(cfg *config.Config) bus.Bus {
	var (
		b   bus.Bus
		err error
	)
	switch cfg.Bus {
	case config.BusNATS:
		b, err = bus.DialNATS(cfg.NATSURL)
	case config.BusZMQ:
		b, err = bus.DialZMQ(cfg.ZMQPub, cfg.ZMQSub)
	default:
		return bus.Nop{}
	}
	if err != nil {
		log.Printf("presence bus %s unavailable, running local-only: %v", cfg.Bus, err)
		return bus.Nop{}
	}
	return b
}
