// pkg/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/numbers2pdf/internal/models"
)

const (
	TaskTypeConvertBatch = "conversion:batch"
	TaskTypeCleanup      = "conversion:cleanup"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the asynq queue weighting shared by client and worker.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

var queueNames = []string{QueueCritical, QueueDefault, QueueLow}

// ErrTaskNotFound is returned for unknown task IDs.
var ErrTaskNotFound = errors.New("task not found")

// Queue is the task queue used for asynchronous conversions.
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	SaveStatus(ctx context.Context, status *TaskStatus) error
}

// Task is the payload of a conversion:batch task. File content is not
// carried; the placeholder depends only on the names.
type Task struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	Priority  int              `json:"priority"`
	Files     []models.FileRef `json:"files"`
	CreatedAt time.Time        `json:"createdAt"`
}

// TaskStatus is the persisted state of a task.
type TaskStatus struct {
	TaskID       string           `json:"taskId"`
	Status       string           `json:"status"`
	Files        []models.FileRef `json:"files,omitempty"`
	ArtifactKey  string           `json:"artifactKey,omitempty"`
	ArtifactName string           `json:"artifactName,omitempty"`
	MediaType    string           `json:"mediaType,omitempty"`
	Duplicates   []string         `json:"duplicates,omitempty"`
	Error        string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt,omitempty"`
}

// QueueConfig defines queue configuration
type QueueConfig struct {
	RedisAddr     string
	RedisDB       int
	RedisPassword string
	MaxRetries    int
	TaskTimeout   time.Duration
	StatusTTL     time.Duration
}

// AsynqQueue implements Queue on asynq, with statuses kept in Redis.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	cfg       QueueConfig
}

func NewAsynqQueue(ctx context.Context, cfg QueueConfig) (*AsynqQueue, error) {
	if cfg.StatusTTL == 0 {
		cfg.StatusTTL = 24 * time.Hour
	}
	if cfg.TaskTimeout == 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}

	redisOpt := RedisOpt(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPassword)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis:     redisClient,
		cfg:       cfg,
	}, nil
}

// RedisOpt builds the asynq connection options.
func RedisOpt(addr string, db int, password string) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: addr, DB: db, Password: password}
}

// QueueForPriority maps a task priority to a queue name.
func QueueForPriority(priority int) string {
	switch priority {
	case 1:
		return QueueCritical
	case 2:
		return QueueDefault
	default:
		return QueueLow
	}
}

func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	t := asynq.NewTask(task.Type, payload,
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Timeout(q.cfg.TaskTimeout),
		asynq.TaskID(task.ID),
		asynq.Queue(QueueForPriority(task.Priority)),
	)
	if _, err := q.client.EnqueueContext(ctx, t); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	return nil
}

func statusKey(taskID string) string {
	return fmt.Sprintf("task_status:%s", taskID)
}

func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
	switch {
	case err == nil:
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &status, nil
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}

	// no saved status, ask asynq directly
	for _, name := range queueNames {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err == nil {
			return StatusFromTaskInfo(info), nil
		}
		if !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, fmt.Errorf("failed to inspect task: %w", err)
		}
	}

	return nil, fmt.Errorf("%s: %w", taskID, ErrTaskNotFound)
}

func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	for _, name := range queueNames {
		err := q.inspector.DeleteTask(name, taskID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			// active tasks cannot be deleted, only cancelled
			if cerr := q.inspector.CancelProcessing(taskID); cerr != nil {
				return fmt.Errorf("failed to cancel task: %w", cerr)
			}
			return nil
		}
	}

	return fmt.Errorf("%s: %w", taskID, ErrTaskNotFound)
}

func (q *AsynqQueue) SaveStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := q.redis.Set(ctx, statusKey(status.TaskID), data, q.cfg.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}

	return nil
}

// Close releases the asynq and redis connections.
func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

// StatusFromTaskInfo converts asynq task state into a TaskStatus.
func StatusFromTaskInfo(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		CreatedAt: info.NextProcessAt,
	}

	var task Task
	if err := json.Unmarshal(info.Payload, &task); err == nil {
		status.Files = task.Files
		if !task.CreatedAt.IsZero() {
			status.CreatedAt = task.CreatedAt
		}
	}

	switch info.State {
	case asynq.TaskStateActive:
		status.Status = string(models.StatusRunning)
	case asynq.TaskStateCompleted:
		status.Status = string(models.StatusCompleted)
		status.UpdatedAt = info.CompletedAt
	case asynq.TaskStateArchived:
		status.Status = string(models.StatusFailed)
		status.Error = info.LastErr
		status.UpdatedAt = info.LastFailedAt
	case asynq.TaskStateRetry:
		status.Status = string(models.StatusPending)
		status.Error = info.LastErr
		status.UpdatedAt = info.LastFailedAt
	default:
		status.Status = string(models.StatusPending)
	}

	return status
}
