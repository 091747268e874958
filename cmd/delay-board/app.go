package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type delayBoardOpts struct {
	grpcAddr     string
	httpAddr     string
	grpcDialAddr string
	swaggerPath  string

	onListen func(grpcAddr, httpAddr string)
}

func runDelayBoard(ctx context.Context, opts delayBoardOpts, b *board) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	grpcLis, err := net.Listen("tcp", opts.grpcAddr)
	if err != nil {
		return err
	}
	httpLis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		_ = grpcLis.Close()
		return err
	}

	if opts.onListen != nil {
		opts.onListen(grpcLis.Addr().String(), httpLis.Addr().String())
	}

	dialAddr := opts.grpcDialAddr
	if dialAddr == "" || strings.HasSuffix(dialAddr, ":0") {
		dialAddr = grpcLis.Addr().String()
	}

	grpcErr := make(chan error, 1)
	go func() {
		grpcErr <- runGRPCServer(ctx, grpcLis)
	}()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runGatewayServer(ctx, httpLis, dialAddr, opts.swaggerPath, b)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-grpcErr:
		return err
	case err := <-httpErr:
		return err
	}
}

func runGRPCServer(ctx context.Context, lis net.Listener) error {
	s := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		stopped := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			s.Stop()
		}
		_ = lis.Close()
	}()

	slog.Info("gRPC server listening", "addr", lis.Addr().String())
	return s.Serve(lis)
}

func runGatewayServer(ctx context.Context, lis net.Listener, grpcAddr string, swaggerPath string, b *board) error {
	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	// /healthz is answered by the gRPC health service through the gateway.
	mux := runtime.NewServeMux(runtime.WithHealthzEndpoint(healthpb.NewHealthClient(conn)))
	if err := b.api.Register(mux); err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := b.snapCache.(pinger); ok {
			pingCtx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			if err := p.Ping(pingCtx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	r.Handle("/metrics", b.metrics.Handler())
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		stages := make(map[string]string, len(b.orch.Accounts()))
		for _, acc := range b.orch.Accounts() {
			stages[acc] = b.orch.Stage(acc).String()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session": b.session,
			"lookups": b.coordinator.Stats(),
			"stages":  stages,
		})
	})
	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(publicConfig(b))
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, swaggerPath)
	})
	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	r.Mount("/", mux)

	srv := &http.Server{Handler: otelhttp.NewHandler(r, "delay-board")}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP gateway listening", "addr", lis.Addr().String())
	err = srv.Serve(lis)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

type pinger interface {
	Ping(ctx context.Context) error
}

// publicConfig lists operational settings only; credentials never leave the process.
func publicConfig(b *board) map[string]any {
	cfg := b.cfg
	accounts := make([]string, 0, len(cfg.Marketplace.Accounts))
	for _, acc := range cfg.Marketplace.Accounts {
		accounts = append(accounts, acc.ID)
	}
	return map[string]any{
		"marketplaceMode":       cfg.Marketplace.Mode,
		"accounts":              accounts,
		"pageSize":              cfg.Marketplace.PageSize,
		"windowDays":            cfg.Marketplace.WindowDays,
		"warehouseMode":         cfg.Warehouse.Mode,
		"lookupKey":             cfg.Warehouse.LookupKey,
		"lookupConcurrency":     b.coordinator.Stats().Concurrency,
		"lookupTimeoutSec":      cfg.Warehouse.TimeoutSeconds,
		"rateLimitPerMinute":    cfg.Warehouse.RateLimitPerMinute,
		"snapshotCache":         cfg.DelayBoard.SnapshotCache,
		"snapshotTTLSeconds":    cfg.DelayBoard.SnapshotTTLSeconds,
		"refreshTimeoutSeconds": cfg.DelayBoard.RefreshTimeoutSeconds,
		"timezoneOffsetHours":   cfg.DelayBoard.TimezoneOffsetHours,
		"kafkaEnabled":          cfg.Kafka.Enabled(),
		"redisEnabled":          cfg.Redis.Enabled(),
		"stores":                b.directory.Len(),
	}
}
