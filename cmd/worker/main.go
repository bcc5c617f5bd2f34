package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/numbers2pdf/config"
	"github.com/feichai0017/numbers2pdf/internal/service/conversion"
	"github.com/feichai0017/numbers2pdf/pkg/logger"
	"github.com/feichai0017/numbers2pdf/pkg/queue"
	"github.com/feichai0017/numbers2pdf/pkg/worker"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		panic(err)
	}
	// the worker only exists for the asynchronous path
	cfg.Server.AsyncEnabled = true

	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(cfg.Log.OutputPaths()),
		logger.WithInitialFields(map[string]interface{}{"service": "numbers2pdf-worker"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := conversion.GetService(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create conversion service", logger.Error(err))
		os.Exit(1)
	}
	defer svc.Close()

	conversionWorker, err := worker.NewConversionWorker(&worker.Config{
		RedisAddr:       cfg.Redis.Addr,
		RedisDB:         cfg.Redis.DB,
		RedisPassword:   cfg.Redis.Password,
		Concurrency:     cfg.Worker.Concurrency,
		Queues:          queue.Queues,
		CleanupSchedule: cfg.Worker.CleanupSchedule,
	}, svc, log)
	if err != nil {
		log.Error("Failed to create conversion worker", logger.Error(err))
		os.Exit(1)
	}

	lis, err := net.Listen("tcp", cfg.Worker.HealthAddr)
	if err != nil {
		log.Error("Failed to listen for health checks", logger.Error(err))
		os.Exit(1)
	}
	health := worker.NewHealthServer(log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return health.Serve(gctx, lis)
	})
	g.Go(func() error {
		if err := conversionWorker.Start(gctx); err != nil {
			return err
		}
		health.SetServing(true)
		<-gctx.Done()
		health.SetServing(false)
		log.Info("Shutting down worker...")
		return conversionWorker.Stop()
	})

	if err := g.Wait(); err != nil {
		log.Error("Worker stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker stopped")
}
