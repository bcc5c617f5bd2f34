package worker

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/numbers2pdf/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr       string
	RedisDB         int
	RedisPassword   string
	Concurrency     int
	Queues          map[string]int
	CleanupSchedule string
}

type BaseWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger logger.Logger
}

func (w *BaseWorker) Stop() error {
	w.server.Shutdown()
	return nil
}

var _ Worker = (*ConversionWorker)(nil)
