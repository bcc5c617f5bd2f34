package conversion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/numbers2pdf/config"
	"github.com/feichai0017/numbers2pdf/internal/models"
	"github.com/feichai0017/numbers2pdf/pkg/batcher"
	"github.com/feichai0017/numbers2pdf/pkg/converters"
	"github.com/feichai0017/numbers2pdf/pkg/logger"
	"github.com/feichai0017/numbers2pdf/pkg/queue"
	"github.com/feichai0017/numbers2pdf/pkg/storage"
)

type ConversionService struct {
	converter converters.DocumentConverter
	packager  *batcher.Packager
	queue     queue.Queue
	storage   storage.Storage
	logger    logger.Logger
	config    *ServiceConfig
	now       func() time.Time
}

type ServiceConfig struct {
	// VerifyOutput reads every generated document back and requires
	// exactly one page.
	VerifyOutput    bool
	QueuePriority   int
	RetentionPeriod time.Duration
}

// NewService wires a conversion service. q and store may be nil, in which
// case only ConvertBatch is available.
func NewService(
	converter converters.DocumentConverter,
	packager *batcher.Packager,
	q queue.Queue,
	store storage.Storage,
	log logger.Logger,
	cfg *ServiceConfig,
) *ConversionService {
	if cfg == nil {
		cfg = &ServiceConfig{
			QueuePriority:   2,
			RetentionPeriod: 24 * time.Hour,
		}
	}

	return &ConversionService{
		converter: converter,
		packager:  packager,
		queue:     q,
		storage:   store,
		logger:    log.Named("conversion"),
		config:    cfg,
		now:       time.Now,
	}
}

// GetService builds the service from process configuration. Storage and
// queue are only connected when asynchronous conversion is enabled.
func GetService(ctx context.Context, cfg *config.Config, log logger.Logger) (*ConversionService, error) {
	svcCfg := &ServiceConfig{
		VerifyOutput:    cfg.Server.VerifyOutput,
		QueuePriority:   2,
		RetentionPeriod: cfg.Worker.Retention(),
	}

	var converterOpts []converters.Option
	if cfg.Server.FontFile != "" {
		font, err := os.ReadFile(cfg.Server.FontFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read font file: %w", err)
		}
		converterOpts = append(converterOpts, converters.WithUnicodeFont(font))
	}

	var (
		q     queue.Queue
		store storage.Storage
	)
	if cfg.Server.AsyncEnabled {
		switch storage.StorageType(cfg.Storage.Type) {
		case storage.StorageTypeMemory, "":
			return nil, ErrLocalStorage
		}

		var err error
		store, err = storage.NewStorage(cfg.Storage, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}

		q, err = queue.NewAsynqQueue(ctx, queue.QueueConfig{
			RedisAddr:     cfg.Redis.Addr,
			RedisDB:       cfg.Redis.DB,
			RedisPassword: cfg.Redis.Password,
			MaxRetries:    cfg.Worker.MaxRetries,
			TaskTimeout:   cfg.Worker.TaskTimeout.Std(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize queue: %w", err)
		}
	}

	return NewService(
		converters.NewPlaceholderConverter(converterOpts...),
		batcher.NewPackager(),
		q,
		store,
		log,
		svcCfg,
	), nil
}

// Close releases the queue connection, if any.
func (s *ConversionService) Close() error {
	if c, ok := s.queue.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *ConversionService) asyncEnabled() bool {
	return s.queue != nil && s.storage != nil
}

// ConvertBatch converts every file in input order and packages the result.
func (s *ConversionService) ConvertBatch(ctx context.Context, files []models.InputFile) (*models.DownloadArtifact, error) {
	log := logger.FromContext(ctx, s.logger)
	log.Info("Starting batch conversion", logger.Int("fileCount", len(files)))

	artifact, err := s.convertAll(ctx, log, files)
	if err != nil {
		log.Error("Batch conversion failed", logger.Error(err))
		return nil, err
	}

	log.Info("Batch conversion completed",
		logger.String("artifact", artifact.Name),
		logger.String("mediaType", string(artifact.MediaType)),
		logger.Int("bytes", len(artifact.Data)),
	)
	return artifact, nil
}

func validateInputs(files []models.InputFile) error {
	if len(files) == 0 {
		return ErrEmptyInput
	}
	for i, f := range files {
		if f.Name == "" {
			return fmt.Errorf("file %d: %w", i, converters.ErrEmptyFileName)
		}
	}
	return nil
}

func (s *ConversionService) convertAll(ctx context.Context, log logger.Logger, files []models.InputFile) (*models.DownloadArtifact, error) {
	if err := validateInputs(files); err != nil {
		return nil, err
	}

	outputs := make([]models.OutputFile, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := s.converter.Convert(f.Data, f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s: %w", f.Name, err)
		}
		if s.config.VerifyOutput {
			if err := verify(data); err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
		}

		outputs = append(outputs, models.OutputFile{
			Name: converters.OutputName(f.Name),
			Data: data,
		})
		log.Debug("Converted file", logger.String("filename", f.Name))
	}

	artifact, err := s.packager.Package(outputs)
	if err != nil {
		return nil, fmt.Errorf("failed to package outputs: %w", err)
	}

	if len(artifact.Duplicates) > 0 {
		log.Warn("Archive contains duplicate entry names; later entries shadow earlier ones",
			logger.Strings("duplicates", artifact.Duplicates),
		)
	}

	return artifact, nil
}

func verify(data []byte) error {
	info, err := converters.Inspect(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if info.Pages != 1 {
		return fmt.Errorf("%w: expected 1 page, got %d", ErrInvalidOutput, info.Pages)
	}
	return nil
}

// SubmitBatch queues a batch for the worker and returns its pending task.
func (s *ConversionService) SubmitBatch(ctx context.Context, files []models.InputFile) (*models.ConversionTask, error) {
	if !s.asyncEnabled() {
		return nil, ErrAsyncDisabled
	}
	if err := validateInputs(files); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx, s.logger)
	now := s.now()
	refs := make([]models.FileRef, len(files))
	for i, f := range files {
		refs[i] = models.FileRef{Name: f.Name, Size: int64(len(f.Data))}
	}

	task := &queue.Task{
		ID:        uuid.New().String(),
		Type:      queue.TaskTypeConvertBatch,
		Priority:  s.config.QueuePriority,
		Files:     refs,
		CreatedAt: now,
	}

	status := &queue.TaskStatus{
		TaskID:    task.ID,
		Status:    string(models.StatusPending),
		Files:     refs,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		return nil, fmt.Errorf("failed to save initial status: %w", err)
	}

	if err := s.queue.Enqueue(ctx, task); err != nil {
		log.Error("Failed to enqueue conversion task",
			logger.String("taskId", task.ID),
			logger.Error(err),
		)
		s.saveFailure(ctx, log, status, err)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Info("Conversion task created",
		logger.String("taskId", task.ID),
		logger.Int("fileCount", len(refs)),
	)

	return toConversionTask(status), nil
}

// HandleConversion runs a queued batch and stores the artifact.
func (s *ConversionService) HandleConversion(ctx context.Context, task *queue.Task) error {
	if !s.asyncEnabled() {
		return ErrAsyncDisabled
	}
	if task == nil || task.ID == "" {
		return fmt.Errorf("invalid task: missing id")
	}

	log := s.logger.With(logger.String("taskId", task.ID))

	status, err := s.queue.GetTaskStatus(ctx, task.ID)
	if err != nil && !errors.Is(err, queue.ErrTaskNotFound) {
		return fmt.Errorf("failed to load task status: %w", err)
	}
	if status != nil && status.Status == string(models.StatusCancelled) {
		log.Info("Skipping cancelled task")
		return nil
	}
	if status == nil {
		status = &queue.TaskStatus{TaskID: task.ID, Files: task.Files, CreatedAt: task.CreatedAt}
	}

	status.Status = string(models.StatusRunning)
	status.UpdatedAt = s.now()
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		log.Error("Failed to save running status", logger.Error(err))
	}

	// content is never read, names are all the converter needs
	files := make([]models.InputFile, len(task.Files))
	for i, ref := range task.Files {
		files[i] = models.InputFile{Name: ref.Name}
	}

	artifact, err := s.convertAll(ctx, log, files)
	if err != nil {
		s.saveFailure(ctx, log, status, err)
		return err
	}

	key := fmt.Sprintf("artifacts/%s/%s", task.ID, artifact.Name)
	if _, err := s.storage.Store(ctx, bytes.NewReader(artifact.Data), key, artifact.MediaType.ContentType()); err != nil {
		s.saveFailure(ctx, log, status, err)
		return fmt.Errorf("failed to store artifact: %w", err)
	}

	status.Status = string(models.StatusCompleted)
	status.ArtifactKey = key
	status.ArtifactName = artifact.Name
	status.MediaType = string(artifact.MediaType)
	status.Duplicates = artifact.Duplicates
	status.Error = ""
	status.UpdatedAt = s.now()
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		return fmt.Errorf("failed to save final status: %w", err)
	}

	log.Info("Conversion task completed",
		logger.String("artifact", artifact.Name),
		logger.Int("fileCount", len(files)),
	)
	return nil
}

func (s *ConversionService) saveFailure(ctx context.Context, log logger.Logger, status *queue.TaskStatus, cause error) {
	status.Status = string(models.StatusFailed)
	status.Error = cause.Error()
	status.UpdatedAt = s.now()
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		log.Error("Failed to save failed status", logger.Error(err))
	}
}

func (s *ConversionService) GetStatus(ctx context.Context, taskID string) (*models.ConversionTask, error) {
	if !s.asyncEnabled() {
		return nil, ErrAsyncDisabled
	}

	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}
	return toConversionTask(status), nil
}

func (s *ConversionService) GetArtifact(ctx context.Context, taskID string) (*models.DownloadArtifact, error) {
	if !s.asyncEnabled() {
		return nil, ErrAsyncDisabled
	}

	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}
	if status.Status != string(models.StatusCompleted) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotCompleted, status.Status)
	}

	reader, err := s.storage.Get(ctx, status.ArtifactKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	return &models.DownloadArtifact{
		Name:       status.ArtifactName,
		Data:       data,
		MediaType:  models.MediaType(status.MediaType),
		Duplicates: status.Duplicates,
	}, nil
}

func (s *ConversionService) CancelTask(ctx context.Context, taskID string) error {
	if !s.asyncEnabled() {
		return ErrAsyncDisabled
	}

	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to get task status: %w", err)
	}
	switch models.ConversionStatus(status.Status) {
	case models.StatusCancelled:
		return nil
	case models.StatusCompleted, models.StatusFailed:
		return fmt.Errorf("%w: %s", ErrTaskFinished, status.Status)
	}

	if err := s.queue.CancelTask(ctx, taskID); err != nil && !errors.Is(err, queue.ErrTaskNotFound) {
		return fmt.Errorf("failed to cancel task: %w", err)
	}

	status.Status = string(models.StatusCancelled)
	status.UpdatedAt = s.now()
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		return fmt.Errorf("failed to save cancelled status: %w", err)
	}

	s.logger.Info("Task cancelled", logger.String("taskId", taskID))
	return nil
}

// CleanupArtifacts removes artifacts older than the retention period.
func (s *ConversionService) CleanupArtifacts(ctx context.Context) (int, error) {
	if !s.asyncEnabled() {
		return 0, ErrAsyncDisabled
	}

	threshold := s.now().Add(-s.config.RetentionPeriod)
	removed, err := s.storage.CleanupBefore(ctx, threshold)
	if err != nil {
		return removed, fmt.Errorf("failed to cleanup storage: %w", err)
	}

	s.logger.Info("Completed artifact cleanup",
		logger.Time("threshold", threshold),
		logger.Int("removed", removed),
	)
	return removed, nil
}

// IsPermanent reports whether retrying err cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, converters.ErrEmptyFileName) ||
		errors.Is(err, ErrInvalidOutput)
}

func toConversionTask(status *queue.TaskStatus) *models.ConversionTask {
	return &models.ConversionTask{
		ID:           status.TaskID,
		Status:       models.ConversionStatus(status.Status),
		FileCount:    len(status.Files),
		Files:        status.Files,
		ArtifactName: status.ArtifactName,
		MediaType:    models.MediaType(status.MediaType),
		Duplicates:   status.Duplicates,
		Error:        status.Error,
		CreatedAt:    status.CreatedAt,
		UpdatedAt:    status.UpdatedAt,
	}
}
