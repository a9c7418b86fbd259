package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cartelwatch/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := RunWatcher(ctx, cfg, defaultWatcherFactories()); err != nil && err != context.Canceled {
		panic(err)
	}
}
