package conversion

import (
	"context"
	"errors"

	"github.com/feichai0017/numbers2pdf/internal/models"
	"github.com/feichai0017/numbers2pdf/pkg/queue"
	"github.com/feichai0017/numbers2pdf/pkg/storage"
)

var (
	// ErrEmptyInput is returned when a conversion is requested with no files.
	ErrEmptyInput = errors.New("please upload at least one .numbers file")
	// ErrAsyncDisabled is returned by asynchronous operations when the
	// service has no queue or storage.
	ErrAsyncDisabled = errors.New("asynchronous conversion is not enabled")
	// ErrTaskNotCompleted is returned when downloading an unfinished task.
	ErrTaskNotCompleted = errors.New("task is not completed")
	// ErrInvalidOutput is returned when output verification fails.
	ErrInvalidOutput = errors.New("generated document failed verification")
	// ErrTaskNotFound is returned for unknown task IDs.
	ErrTaskNotFound = queue.ErrTaskNotFound
	// ErrTaskFinished is returned when cancelling a completed or failed task.
	ErrTaskFinished = errors.New("task has already finished")
	// ErrArtifactExpired is returned when a completed task's artifact is no
	// longer in storage.
	ErrArtifactExpired = storage.ErrNotFound
	// ErrLocalStorage is returned when asynchronous conversion is configured
	// with process-local storage the worker cannot share.
	ErrLocalStorage = errors.New("memory storage cannot be shared between server and worker; use s3 or minio")
)

type ConversionProcessor interface {
	ConvertBatch(ctx context.Context, files []models.InputFile) (*models.DownloadArtifact, error)
	SubmitBatch(ctx context.Context, files []models.InputFile) (*models.ConversionTask, error)
	HandleConversion(ctx context.Context, task *queue.Task) error
	GetStatus(ctx context.Context, taskID string) (*models.ConversionTask, error)
	GetArtifact(ctx context.Context, taskID string) (*models.DownloadArtifact, error)
	CancelTask(ctx context.Context, taskID string) error
	CleanupArtifacts(ctx context.Context) (int, error)
}
