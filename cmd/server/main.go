package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/numbers2pdf/api/handlers"
	"github.com/feichai0017/numbers2pdf/api/routes"
	"github.com/feichai0017/numbers2pdf/config"
	"github.com/feichai0017/numbers2pdf/internal/service/conversion"
	"github.com/feichai0017/numbers2pdf/internal/utils/validator"
	"github.com/feichai0017/numbers2pdf/pkg/logger"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(cfg.Log.OutputPaths()),
		logger.WithInitialFields(map[string]interface{}{"service": "numbers2pdf-server"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := conversion.GetService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to get conversion service", logger.Error(err))
	}
	defer svc.Close()

	uploadValidator := validator.NewUploadValidator(log, &validator.ValidatorConfig{
		MaxFileSize:       cfg.Server.MaxUploadBytes(),
		AllowedExtensions: cfg.Server.AllowedExtensions,
	})

	h := handlers.NewHandlers(svc, uploadValidator, log)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes()
	routes.SetupRoutes(r, h, routes.Options{
		// a batch may hold several files; cap the whole body at 10x the per-file limit
		MaxBodyBytes: 10 * cfg.Server.MaxUploadBytes(),
		Logger:       log,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting",
			logger.String("addr", cfg.Server.Addr),
			logger.Bool("async", cfg.Server.AsyncEnabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", logger.Error(err))
		os.Exit(1)
	}
}
