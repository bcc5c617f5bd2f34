package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/numbers2pdf/internal/service/conversion"
	"github.com/feichai0017/numbers2pdf/pkg/logger"
	"github.com/feichai0017/numbers2pdf/pkg/queue"
)

type ConversionWorker struct {
	BaseWorker
	scheduler *asynq.Scheduler
	stopOnce  sync.Once
	cfg       *Config
	service   conversion.ConversionProcessor
}

func NewConversionWorker(cfg *Config, service conversion.ConversionProcessor, log logger.Logger) (*ConversionWorker, error) {
	if cfg.Queues == nil {
		cfg.Queues = queue.Queues
	}
	redisOpt := queue.RedisOpt(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPassword)

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      cfg.Queues,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return time.Duration(n) * time.Minute
		},
	})

	w := &ConversionWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log.Named("worker"),
		},
		cfg:     cfg,
		service: service,
	}
	if cfg.CleanupSchedule != "" {
		w.scheduler = asynq.NewScheduler(redisOpt, nil)
	}

	w.registerHandlers()
	return w, nil
}

func (w *ConversionWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeConvertBatch, w.handleConvertBatch)
	w.mux.HandleFunc(queue.TaskTypeCleanup, w.handleCleanup)
}

// Handler exposes the task mux.
func (w *ConversionWorker) Handler() asynq.Handler {
	return w.mux
}

func (w *ConversionWorker) handleConvertBatch(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("Processing conversion task",
		logger.String("taskId", task.ID),
		logger.Int("fileCount", len(task.Files)),
	)

	if err := w.service.HandleConversion(ctx, &task); err != nil {
		if conversion.IsPermanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if rw := t.ResultWriter(); rw != nil {
		if _, err := rw.Write([]byte(`{"status":"completed"}`)); err != nil {
			w.logger.Warn("Failed to write task result", logger.Error(err))
		}
	}
	return nil
}

func (w *ConversionWorker) handleCleanup(ctx context.Context, t *asynq.Task) error {
	removed, err := w.service.CleanupArtifacts(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("Artifact cleanup finished", logger.Int("removed", removed))
	return nil
}

// Start starts the task server and, when configured, the cleanup scheduler.
// It does not block; call Stop to shut both down.
func (w *ConversionWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	if w.scheduler != nil {
		entryID, err := w.scheduler.Register(w.cfg.CleanupSchedule,
			asynq.NewTask(queue.TaskTypeCleanup, nil),
			asynq.Queue(queue.QueueLow),
		)
		if err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to register cleanup schedule: %w", err)
		}
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		w.logger.Info("Cleanup scheduled",
			logger.String("schedule", w.cfg.CleanupSchedule),
			logger.String("entryId", entryID),
		)
	}

	return nil
}

func (w *ConversionWorker) Stop() error {
	w.stopOnce.Do(func() {
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
	})
	return nil
}
