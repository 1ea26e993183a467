package tasks

import (
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TypeKeyGeneration = "key:generate"
	TypeKeySign       = "key:sign"
	TypeKeyBackup     = "key:backup"

	QUEUE_NAME        = "sigforge"
	BACKUP_QUEUE_NAME = "sigforge:backup"
)

type KeyGenerationPayload struct {
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
	SessionID string `json:"session_id"`
}

type KeySignPayload struct {
	KeyID     string `json:"key_id"`
	SessionID string `json:"session_id"`
	Payload   string `json:"payload"` // base64 std encoding
}

type KeyBackupPayload struct {
	KeyID string `json:"key_id"`
}

var ErrTaskInProgress = errors.New("task is still in progress")

// GetTaskResult returns the result bytes of a finished task, or
// ErrTaskInProgress while the worker is still on it.
func GetTaskResult(inspector *asynq.Inspector, taskID string) (string, error) {
	task, err := inspector.GetTaskInfo(QUEUE_NAME, taskID)
	if err != nil {
		return "", fmt.Errorf("fail to find task, err: %w", err)
	}

	switch task.State {
	case asynq.TaskStateCompleted:
		return string(task.Result), nil
	case asynq.TaskStateArchived, asynq.TaskStateRetry:
		if len(task.LastErr) > 0 {
			return "", fmt.Errorf("task failed, err: %s", task.LastErr)
		}
		return "", ErrTaskInProgress
	default:
		return "", ErrTaskInProgress
	}
}
