package conversion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/numbers2pdf/config"
	"github.com/feichai0017/numbers2pdf/internal/models"
	"github.com/feichai0017/numbers2pdf/pkg/batcher"
	"github.com/feichai0017/numbers2pdf/pkg/converters"
	"github.com/feichai0017/numbers2pdf/pkg/logger"
	"github.com/feichai0017/numbers2pdf/pkg/queue"
	"github.com/feichai0017/numbers2pdf/pkg/storage/memory"
)

type fakeQueue struct {
	mu         sync.Mutex
	tasks      []*queue.Task
	statuses   map[string]queue.TaskStatus
	enqueueErr error
	cancelled  []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{statuses: make(map[string]queue.TaskStatus)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, task *queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) GetTaskStatus(ctx context.Context, taskID string) (*queue.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	status, ok := q.statuses[taskID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", taskID, queue.ErrTaskNotFound)
	}
	return &status, nil
}

func (q *fakeQueue) CancelTask(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, taskID)
	return nil
}

func (q *fakeQueue) SaveStatus(ctx context.Context, status *queue.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[status.TaskID] = *status
	return nil
}

type brokenConverter struct{ out []byte }

func (b brokenConverter) Convert(_ []byte, name string) ([]byte, error) {
	if b.out == nil {
		return nil, errors.New("render failed")
	}
	return b.out, nil
}

func newSyncService(log logger.Logger) *ConversionService {
	return NewService(converters.NewPlaceholderConverter(), batcher.NewPackager(), nil, nil, log, nil)
}

func newAsyncService(t *testing.T) (*ConversionService, *fakeQueue, *memory.Storage) {
	t.Helper()
	q := newFakeQueue()
	store := memory.NewStorage()
	svc := NewService(converters.NewPlaceholderConverter(), batcher.NewPackager(), q, store, logger.NewNop(), &ServiceConfig{
		QueuePriority:   2,
		RetentionPeriod: time.Hour,
	})
	return svc, q, store
}

func unzip(t *testing.T, data []byte) ([]string, map[string][]byte) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	contents := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		names = append(names, f.Name)
		contents[f.Name] = body
	}
	return names, contents
}

func TestConvertBatchEmpty(t *testing.T) {
	_, err := newSyncService(logger.NewNop()).ConvertBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestConvertBatchEmptyName(t *testing.T) {
	_, err := newSyncService(logger.NewNop()).ConvertBatch(context.Background(), []models.InputFile{
		{Name: "A.numbers"},
		{Name: ""},
	})
	assert.ErrorIs(t, err, converters.ErrEmptyFileName)
	assert.True(t, IsPermanent(err))
}

func TestConvertBatchSingleFile(t *testing.T) {
	art, err := newSyncService(logger.NewNop()).ConvertBatch(context.Background(), []models.InputFile{
		{Name: "Budget.numbers", Data: []byte("PK\x03\x04 whatever")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Budget.pdf", art.Name)
	assert.Equal(t, models.MediaTypeDocument, art.MediaType)

	info, err := converters.Inspect(art.Data)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Pages)
	assert.Contains(t, info.Text, "Converted from: Budget.numbers")
}

func TestConvertBatchTwoFilesProducesArchive(t *testing.T) {
	art, err := newSyncService(logger.NewNop()).ConvertBatch(context.Background(), []models.InputFile{
		{Name: "A.numbers", Data: []byte("a")},
		{Name: "B.numbers", Data: []byte("b")},
	})
	require.NoError(t, err)
	assert.Equal(t, "numbers_converted_pdfs.zip", art.Name)
	assert.Equal(t, models.MediaTypeArchive, art.MediaType)

	names, contents := unzip(t, art.Data)
	assert.Equal(t, []string{"A.pdf", "B.pdf"}, names)
	for _, src := range []string{"A", "B"} {
		info, err := converters.Inspect(contents[src+".pdf"])
		require.NoError(t, err)
		assert.Equal(t, 1, info.Pages)
		assert.Contains(t, info.Text, "Converted from: "+src+".numbers")
	}
}

func TestConvertBatchWarnsOnDuplicates(t *testing.T) {
	log := logger.NewTestLogger()
	art, err := newSyncService(log).ConvertBatch(context.Background(), []models.InputFile{
		{Name: "A.numbers"},
		{Name: "A.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A.pdf"}, art.Duplicates)
	assert.Len(t, log.EntriesAt("WARN"), 1)
}

func TestConvertBatchVerifyOutput(t *testing.T) {
	svc := NewService(brokenConverter{out: []byte("garbage")}, batcher.NewPackager(), nil, nil, logger.NewNop(), &ServiceConfig{VerifyOutput: true})
	_, err := svc.ConvertBatch(context.Background(), []models.InputFile{{Name: "A.numbers"}})
	assert.ErrorIs(t, err, ErrInvalidOutput)

	ok := NewService(converters.NewPlaceholderConverter(), batcher.NewPackager(), nil, nil, logger.NewNop(), &ServiceConfig{VerifyOutput: true})
	_, err = ok.ConvertBatch(context.Background(), []models.InputFile{{Name: "A.numbers"}})
	assert.NoError(t, err)
}

func TestConvertBatchStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newSyncService(logger.NewNop()).ConvertBatch(ctx, []models.InputFile{{Name: "A.numbers"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAsyncDisabled(t *testing.T) {
	svc := newSyncService(logger.NewNop())
	ctx := context.Background()

	_, err := svc.SubmitBatch(ctx, []models.InputFile{{Name: "A.numbers"}})
	assert.ErrorIs(t, err, ErrAsyncDisabled)
	_, err = svc.GetStatus(ctx, "x")
	assert.ErrorIs(t, err, ErrAsyncDisabled)
	_, err = svc.GetArtifact(ctx, "x")
	assert.ErrorIs(t, err, ErrAsyncDisabled)
	assert.ErrorIs(t, svc.CancelTask(ctx, "x"), ErrAsyncDisabled)
	_, err = svc.CleanupArtifacts(ctx)
	assert.ErrorIs(t, err, ErrAsyncDisabled)
}

func TestSubmitHandleDownload(t *testing.T) {
	ctx := context.Background()
	svc, q, store := newAsyncService(t)

	task, err := svc.SubmitBatch(ctx, []models.InputFile{
		{Name: "A.numbers", Data: []byte("aaa")},
		{Name: "B.numbers", Data: []byte("b")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Equal(t, 2, task.FileCount)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, queue.TaskTypeConvertBatch, q.tasks[0].Type)
	assert.Equal(t, int64(3), q.tasks[0].Files[0].Size)

	_, err = svc.GetArtifact(ctx, task.ID)
	assert.ErrorIs(t, err, ErrTaskNotCompleted)

	require.NoError(t, svc.HandleConversion(ctx, q.tasks[0]))

	status, err := svc.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status.Status)
	assert.Equal(t, "numbers_converted_pdfs.zip", status.ArtifactName)
	assert.Equal(t, models.MediaTypeArchive, status.MediaType)

	key := "artifacts/" + task.ID + "/numbers_converted_pdfs.zip"
	assert.Equal(t, []string{key}, store.Keys())
	assert.Equal(t, "application/zip", store.ContentType(key))

	art, err := svc.GetArtifact(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "numbers_converted_pdfs.zip", art.Name)
	names, _ := unzip(t, art.Data)
	assert.Equal(t, []string{"A.pdf", "B.pdf"}, names)
}

func TestSubmitValidates(t *testing.T) {
	svc, q, _ := newAsyncService(t)
	_, err := svc.SubmitBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, q.tasks)
}

func TestSubmitEnqueueFailureMarksFailed(t *testing.T) {
	svc, q, _ := newAsyncService(t)
	q.enqueueErr = errors.New("redis down")

	_, err := svc.SubmitBatch(context.Background(), []models.InputFile{{Name: "A.numbers"}})
	require.Error(t, err)
	require.Len(t, q.statuses, 1)
	for _, st := range q.statuses {
		assert.Equal(t, string(models.StatusFailed), st.Status)
		assert.Contains(t, st.Error, "redis down")
	}
}

func TestHandleConversionFailureRecorded(t *testing.T) {
	ctx := context.Background()
	q := newFakeQueue()
	svc := NewService(brokenConverter{}, batcher.NewPackager(), q, memory.NewStorage(), logger.NewNop(), nil)

	task := &queue.Task{ID: "t1", Type: queue.TaskTypeConvertBatch, Files: []models.FileRef{{Name: "A.numbers"}}}
	require.Error(t, svc.HandleConversion(ctx, task))

	status, err := svc.GetStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, status.Status)
	assert.Contains(t, status.Error, "render failed")
}

func TestHandleConversionSkipsCancelled(t *testing.T) {
	ctx := context.Background()
	svc, q, store := newAsyncService(t)

	task, err := svc.SubmitBatch(ctx, []models.InputFile{{Name: "A.numbers"}})
	require.NoError(t, err)
	require.NoError(t, svc.CancelTask(ctx, task.ID))
	assert.Equal(t, []string{task.ID}, q.cancelled)

	require.NoError(t, svc.HandleConversion(ctx, q.tasks[0]))
	assert.Empty(t, store.Keys())

	status, err := svc.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, status.Status)
}

func TestCancelUnknownTask(t *testing.T) {
	svc, _, _ := newAsyncService(t)
	assert.ErrorIs(t, svc.CancelTask(context.Background(), "nope"), ErrTaskNotFound)
}

func TestCleanupArtifacts(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newAsyncService(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	store.SetClock(func() time.Time { return now.Add(-2 * time.Hour) })
	_, err := store.Store(ctx, bytes.NewReader([]byte("old")), "artifacts/old/A.pdf", "application/pdf")
	require.NoError(t, err)
	store.SetClock(func() time.Time { return now })
	_, err = store.Store(ctx, bytes.NewReader([]byte("new")), "artifacts/new/A.pdf", "application/pdf")
	require.NoError(t, err)

	removed, err := svc.CleanupArtifacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"artifacts/new/A.pdf"}, store.Keys())
}

func TestDownloadAfterArtifactRemoved(t *testing.T) {
	ctx := context.Background()
	svc, q, store := newAsyncService(t)

	task, err := svc.SubmitBatch(ctx, []models.InputFile{{Name: "A.numbers"}})
	require.NoError(t, err)
	require.NoError(t, svc.HandleConversion(ctx, q.tasks[0]))
	require.NoError(t, store.Delete(ctx, "artifacts/"+task.ID+"/A.pdf"))

	_, err = svc.GetArtifact(ctx, task.ID)
	assert.ErrorIs(t, err, ErrArtifactExpired)
}

func TestCancelFinishedTask(t *testing.T) {
	ctx := context.Background()
	svc, q, store := newAsyncService(t)

	task, err := svc.SubmitBatch(ctx, []models.InputFile{{Name: "A.numbers"}})
	require.NoError(t, err)
	require.NoError(t, svc.HandleConversion(ctx, q.tasks[0]))

	assert.ErrorIs(t, svc.CancelTask(ctx, task.ID), ErrTaskFinished)
	assert.Empty(t, q.cancelled)

	status, err := svc.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status.Status)

	art, err := svc.GetArtifact(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "A.pdf", art.Name)
	assert.Len(t, store.Keys(), 1)

	failed := &queue.TaskStatus{TaskID: "t-failed", Status: string(models.StatusFailed)}
	require.NoError(t, q.SaveStatus(ctx, failed))
	assert.ErrorIs(t, svc.CancelTask(ctx, "t-failed"), ErrTaskFinished)
}

func TestCancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, q, _ := newAsyncService(t)

	task, err := svc.SubmitBatch(ctx, []models.InputFile{{Name: "A.numbers"}})
	require.NoError(t, err)
	require.NoError(t, svc.CancelTask(ctx, task.ID))
	require.NoError(t, svc.CancelTask(ctx, task.ID))
	assert.Equal(t, []string{task.ID}, q.cancelled)
}

func TestGetServiceRejectsMemoryStorageForAsync(t *testing.T) {
	for _, storageType := range []string{"memory", ""} {
		cfg := config.Default()
		cfg.Server.AsyncEnabled = true
		cfg.Storage.Type = storageType

		_, err := GetService(context.Background(), cfg, logger.NewNop())
		assert.ErrorIs(t, err, ErrLocalStorage, "type %q", storageType)
	}
}

func TestGetServiceSyncNeedsNoBackends(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Type = "memory"

	svc, err := GetService(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.SubmitBatch(context.Background(), []models.InputFile{{Name: "A.numbers"}})
	assert.ErrorIs(t, err, ErrAsyncDisabled)
}

func TestGetServiceMissingFontFile(t *testing.T) {
	cfg := config.Default()
	cfg.Server.FontFile = t.TempDir() + "/missing.ttf"

	_, err := GetService(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)
}
