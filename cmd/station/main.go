package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/cache"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/config"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/conn"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/engine"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/protocol"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/store"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/telemetry"
)

func main() {
	cfg := config.LoadStation()
	shutdownTelemetry := telemetry.Setup("station")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	c, err := cache.Open(cfg.CachePath)
	if err != nil {
		log.Fatalf("open cache: %v", err)
	}
	defer c.Close()

	var e *engine.Engine
	sup := conn.New(conn.Config{
		URL:           cfg.RelayURL,
		Heartbeat:     cfg.Heartbeat,
		MaxAttempts:   cfg.MaxDialAttempts,
		RetryInterval: cfg.RetryInterval,
		OnStatus: func(status string) {
			log.Printf("relay status=%s pending=%d", status, e.PendingCount())
		},
	}, func(msg protocol.Message) {
		e.HandleMessage(msg)
	})

	e = engine.New(store.New(), c, sup)
	if err := e.LoadState(); err != nil {
		log.Fatalf("load state: %v", err)
	}
	e.SetAnnouncer(func(ticketNumber string, counterNumber int) {
		log.Printf("announce ticket=%s counter=%d", ticketNumber, counterNumber)
	})
	log.Printf("state restored tickets=%d categories=%d tellers=%d pending=%d",
		len(e.Tickets()), len(e.Categories()), len(e.Tellers()), e.PendingCount())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	go func() {
		ticker := time.NewTicker(cfg.ResetCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if e.DailyResetDue() {
					log.Printf("daily reset: numbering cycle rolled over")
					e.PerformDailyReset()
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// SIGUSR1 drains the offline queue, SIGUSR2 resets the dial budget after
	// a terminal connection failure. Both are deliberate operator actions.
	syncSignal := make(chan os.Signal, 1)
	signal.Notify(syncSignal, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for sig := range syncSignal {
			switch sig {
			case syscall.SIGUSR1:
				report, err := e.SyncPendingChanges(ctx)
				if err != nil {
					log.Printf("sync refused: %v", err)
					continue
				}
				log.Printf("sync done attempted=%d sent=%d failed=%d", report.Attempted, report.Sent, report.Failed)
			case syscall.SIGUSR2:
				sup.Retry()
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	sup.Close()
	log.Printf("station stopped pending=%d", e.PendingCount())
}
