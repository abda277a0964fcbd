package main

import (
	"context"
	"log"
	"os"

	"github.com/snoreguard/panel/internal/config"
	"github.com/snoreguard/panel/internal/server"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
