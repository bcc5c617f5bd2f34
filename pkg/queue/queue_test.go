package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/numbers2pdf/internal/models"
)

func TestQueueForPriority(t *testing.T) {
	assert.Equal(t, QueueCritical, QueueForPriority(1))
	assert.Equal(t, QueueDefault, QueueForPriority(2))
	assert.Equal(t, QueueLow, QueueForPriority(0))
	assert.Equal(t, QueueLow, QueueForPriority(9))
}

func TestStatusFromTaskInfo(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(&Task{
		ID:        "t1",
		Type:      TaskTypeConvertBatch,
		Files:     []models.FileRef{{Name: "A.numbers", Size: 3}},
		CreatedAt: created,
	})
	require.NoError(t, err)

	cases := []struct {
		state asynq.TaskState
		want  models.ConversionStatus
	}{
		{asynq.TaskStatePending, models.StatusPending},
		{asynq.TaskStateScheduled, models.StatusPending},
		{asynq.TaskStateRetry, models.StatusPending},
		{asynq.TaskStateActive, models.StatusRunning},
		{asynq.TaskStateCompleted, models.StatusCompleted},
		{asynq.TaskStateArchived, models.StatusFailed},
	}
	for _, tc := range cases {
		info := &asynq.TaskInfo{ID: "t1", State: tc.state, Payload: payload, LastErr: "boom"}
		status := StatusFromTaskInfo(info)
		assert.Equal(t, string(tc.want), status.Status, "state %v", tc.state)
		assert.Equal(t, "t1", status.TaskID)
		assert.Equal(t, created, status.CreatedAt)
		require.Len(t, status.Files, 1)
		assert.Equal(t, "A.numbers", status.Files[0].Name)
	}
}

func TestStatusFromTaskInfoArchivedKeepsError(t *testing.T) {
	status := StatusFromTaskInfo(&asynq.TaskInfo{ID: "t2", State: asynq.TaskStateArchived, LastErr: "render failed"})
	assert.Equal(t, "render failed", status.Error)
}
