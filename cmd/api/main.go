package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/niota4/ageless-literature-sub006/internal/auction"
	"github.com/niota4/ageless-literature-sub006/internal/bids"
	"github.com/niota4/ageless-literature-sub006/internal/claims"
	"github.com/niota4/ageless-literature-sub006/internal/config"
	"github.com/niota4/ageless-literature-sub006/internal/db"
	"github.com/niota4/ageless-literature-sub006/internal/feed"
	httpserver "github.com/niota4/ageless-literature-sub006/internal/http"
	"github.com/niota4/ageless-literature-sub006/internal/logger"
	"github.com/niota4/ageless-literature-sub006/internal/notify"
	"github.com/niota4/ageless-literature-sub006/internal/orders"
	"github.com/niota4/ageless-literature-sub006/internal/payments"
	"github.com/niota4/ageless-literature-sub006/internal/store"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	zlog := logger.New()
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		zlog.Fatalw("db connect failed", "error", err)
	}
	defer pool.Close()

	st := store.New(pool)

	var notifier notify.Notifier = &notify.LogNotifier{Log: zlog}
	var hub *feed.Hub
	if cfg.Redis.Addr != "" {
		rn, err := notify.NewRedisNotifier(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			zlog.Fatalw("redis connect failed", "error", err)
		}
		defer rn.Close()
		notifier = rn

		hub = feed.NewHub(zlog)
		sub, err := feed.NewSubscriber(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, hub, zlog)
		if err != nil {
			zlog.Fatalw("redis subscribe failed", "error", err)
		}
		defer sub.Close()
		go func() {
			if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
				zlog.Errorw("feed subscriber stopped", "error", err)
			}
		}()
	} else {
		zlog.Warnw("redis not configured, events are log-only and the websocket feed is disabled")
	}

	engine := auction.NewEngine(st, notifier, zlog, cfg.Auctions.PaymentWindowHours)
	ledger := bids.NewLedger(st, notifier, zlog)
	claimsSvc := claims.NewService(st, orders.NewPGCreator(pool), &payments.GatewayStub{Log: zlog}, notifier, zlog)

	handler := httpserver.NewHandler(engine, ledger, claimsSvc, st, hub)
	srv := httpserver.NewServer(cfg.Server.Addr, handler)

	go func() {
		zlog.Infow("api listening", "addr", cfg.Server.Addr)
		if err := srv.Start(); err != nil && ctx.Err() == nil {
			zlog.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	zlog.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Errorw("shutdown failed", "error", err)
	}
}
