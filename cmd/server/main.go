package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/hubwire/hubwire/internal/hub"
)

const shutdownTimeout = 10 * time.Second

func main() {
	addr := flag.String("addr", ":3000", "Address to listen on for both TCP and WebSocket clients")
	flag.Parse()

	h := hub.New()
	if err := h.Start(*addr); err != nil {
		log.Fatalf("Failed to start hub: %v", err)
	}

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"hub": func(ctx context.Context) error {
				log.Println("Shutting down hub...")
				h.Stop()
				return nil
			},
		},
	)

	exitCode := <-wait
	log.Printf("Hub stopped with exit code %d", exitCode)
	os.Exit(exitCode)
}
