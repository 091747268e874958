package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/DelayBoard/internal/broker/kafka"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type notifierOpts struct {
	httpAddr      string
	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type overdueConsumer interface {
	ConsumeOverdue(ctx context.Context, h kafka.OverdueHandler) error
	Skipped() int64
}

func runNotifier(ctx context.Context, opts notifierOpts, consumer overdueConsumer, d *digest) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runNotifierHTTPServer(ctx, lis, d, consumer)
	}()

	consumeErr := make(chan error, 1)
	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		consumeErr <- consumer.ConsumeOverdue(ctx, d)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	case err := <-consumeErr:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "consume overdue orders")
	}
}

func runNotifierHTTPServer(ctx context.Context, lis net.Listener, d *digest, consumer overdueConsumer) error {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{
			"received": d.received.Load(),
			"skipped":  consumer.Skipped(),
		})
	})
	r.Get("/digest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d.Summary())
	})
	r.Get("/digest/{account}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		account := chi.URLParam(r, "account")
		acc, ok := d.Summary()[account]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"no snapshot seen for account"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"account": account,
			"digest":  acc,
			"stores":  d.Stores(account),
		})
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("notifier HTTP listening", "addr", lis.Addr().String())
	err := srv.Serve(lis)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
