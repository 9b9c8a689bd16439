package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/niota4/ageless-literature-sub006/internal/auction"
	"github.com/niota4/ageless-literature-sub006/internal/config"
	"github.com/niota4/ageless-literature-sub006/internal/db"
	"github.com/niota4/ageless-literature-sub006/internal/logger"
	"github.com/niota4/ageless-literature-sub006/internal/notify"
	"github.com/niota4/ageless-literature-sub006/internal/store"
	"github.com/niota4/ageless-literature-sub006/internal/worker"
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
	if cfg.Redis.Addr != "" {
		rn, err := notify.NewRedisNotifier(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			zlog.Fatalw("redis connect failed", "error", err)
		}
		defer rn.Close()
		notifier = rn
	}

	engine := auction.NewEngine(st, notifier, zlog, cfg.Auctions.PaymentWindowHours)

	w := &worker.Worker{
		Store:           st,
		Engine:          engine,
		Notifier:        notifier,
		Log:             zlog,
		Interval:        time.Duration(cfg.Worker.IntervalSeconds) * time.Second,
		ReminderHorizon: time.Duration(cfg.Auctions.ReminderHours) * time.Hour,
	}

	zlog.Infow("settlement worker starting", "interval", w.Interval)
	w.Run(ctx)
	zlog.Infow("settlement worker stopped")
}
