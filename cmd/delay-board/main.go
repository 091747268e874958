package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/DelayBoard/config"
	"github.com/BearBump/DelayBoard/internal/tracing"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config load failed, %v", err))
	}

	grpcAddr := cfg.DelayBoard.GRPCAddr
	if grpcAddr == "" {
		grpcAddr = ":50051"
	}
	httpAddr := cfg.DelayBoard.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		swaggerPath = "api/delayboard.swagger.json"
	}

	shutdownTracing := tracing.InitTracerProvider("delay-board", nil)
	defer shutdownTracing()

	b, err := buildBoard(cfg, defaultBoardFactories())
	if err != nil {
		panic(err)
	}
	defer b.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("delay-board starting", "session", b.session, "accounts", b.orch.Accounts())
	if err := runDelayBoard(ctx, delayBoardOpts{
		grpcAddr:     grpcAddr,
		httpAddr:     httpAddr,
		grpcDialAddr: grpcAddr,
		swaggerPath:  swaggerPath,
	}, b); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
