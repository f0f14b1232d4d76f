package main

import (
	"context"
	"os/signal"
	"syscall"

	"nrsr-backend/cmd/nrsr-scraper/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	commands.ExecuteContext(ctx)
}
