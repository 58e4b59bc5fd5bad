package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/vaamb/gaia"
)

func main() {
	flow, err := gaia.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil {
		log.Fatalf("controller exited: %v", err)
	}
}
