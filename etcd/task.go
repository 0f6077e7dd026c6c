package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"multihop/common"
	"multihop/path_search"
	"multihop/structs"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	TaskPrefix   = "/multihop/tasks/"
	ResultPrefix = "/multihop/results/"

	// SearchTaskType asks a worker to run the path search for one hop count
	SearchTaskType = "path.search"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Task struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
}

type TaskResult struct {
	TaskID      string    `json:"task_id"`
	Result      string    `json:"result"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

type TaskProcessor func(ctx context.Context, task Task) (string, error)

type SearchPayload struct {
	HopCount common.HopCount `json:"hop_count"`
}

// SearchRunner is implemented by *path_search.Engine
type SearchRunner interface {
	Search(ctx context.Context, h common.HopCount) (path_search.Stats, error)
}

// NewSearchProcessor runs the requested hop count and answers with the JSON stats
func NewSearchProcessor(runner SearchRunner) TaskProcessor {
	return func(ctx context.Context, task Task) (string, error) {
		var payload SearchPayload
		if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
			return "", fmt.Errorf("invalid payload: %w", err)
		}

		stats, err := runner.Search(ctx, payload.HopCount)
		if err != nil {
			return "", err
		}

		data, err := json.Marshal(stats)
		if err != nil {
			return "", fmt.Errorf("failed to marshal stats: %w", err)
		}
		return string(data), nil
	}
}

func newClient(cfg structs.EtcdConfig) (*clientv3.Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return client, nil
}
