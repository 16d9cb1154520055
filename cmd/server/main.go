package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/roomcall/backend/internal/config"
	"github.com/roomcall/backend/internal/health"
	"github.com/roomcall/backend/internal/room"
	"github.com/roomcall/backend/internal/session"
	sig "github.com/roomcall/backend/internal/signal"
	"github.com/roomcall/backend/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	registry := session.NewRegistry()
	rooms := room.NewStore(cfg.Room.StartThreshold)
	coord := sig.NewCoordinator(registry, rooms, cfg.Room.DurationMinutes)

	server := ws.NewServer(coord, cfg.Server.AllowedOrigins)
	probe, err := health.NewProbe(registry, rooms)
	if err != nil {
		log.Fatalf("Failed to init health probe: %v", err)
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)
	probe.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		os.Exit(0)
	}()

	log.Printf("Rooms start their timer at %d members, duration %d minutes",
		cfg.Room.StartThreshold, cfg.Room.DurationMinutes)

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
