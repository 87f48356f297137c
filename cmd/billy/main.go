// Billy Bassistant: a Big Mouth Billy Bass that holds voice
// conversations through the OpenAI Realtime API, flaps along to its
// own speech, and sings on request.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"billy-bassistant/internal/config"
	"billy-bassistant/internal/log"
	"billy-bassistant/pkg/app"
)

func main() {
	if err := run(); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A .env next to the binary seeds the environment; absence is fine.
	godotenv.Load()

	cfg := config.Load()
	log.Init(cfg.Server.LogLevel)

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}
