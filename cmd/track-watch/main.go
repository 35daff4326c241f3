package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/TrackSync/config"
	"github.com/pkg/errors"
)

func main() {
	cfg, err := config.Load(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Watcher.SlogLevel()})))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := watchHTTPOpts{
		httpAddr:    cfg.Watcher.HTTPAddr,
		swaggerPath: os.Getenv("swaggerPath"),
	}
	if err := RunTrackWatch(ctx, cfg, defaultWatchFactories(), opts); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
