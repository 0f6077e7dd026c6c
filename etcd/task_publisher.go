package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"multihop/common"
	"multihop/path_search"
	"multihop/structs"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

var taskSeq atomic.Int64

type TaskPublisher struct {
	client      *clientv3.Client
	kv          clientv3.KV
	publisherID string
}

func NewTaskPublisher(cfg structs.EtcdConfig) (*TaskPublisher, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	return &TaskPublisher{
		client:      client,
		kv:          client,
		publisherID: fmt.Sprintf("publisher-%d", time.Now().Unix()),
	}, nil
}

func (p *TaskPublisher) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

func (p *TaskPublisher) CreateTask(taskType, payload string) Task {
	return Task{
		ID:        fmt.Sprintf("task-%d-%d", time.Now().UnixNano(), taskSeq.Add(1)),
		Type:      taskType,
		Payload:   payload,
		CreatedAt: time.Now(),
		Status:    StatusPending,
	}
}

func (p *TaskPublisher) PublishTask(ctx context.Context, task Task) error {
	taskJSON, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = p.kv.Put(ctx, TaskPrefix+task.ID, string(taskJSON))
	if err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}

	log.Infof("[%s] Task published: %s (Type: %s)", p.publisherID, task.ID, task.Type)
	return nil
}

// PublishSearches publishes one path.search task per hop count, in order
func (p *TaskPublisher) PublishSearches(ctx context.Context, hops []common.HopCount) ([]Task, error) {
	tasks := make([]Task, 0, len(hops))
	for _, h := range hops {
		if !common.ValidHopCount(h) {
			return tasks, fmt.Errorf("%w: %d", path_search.ErrInvalidHopCount, h)
		}
		payload, err := json.Marshal(SearchPayload{HopCount: h})
		if err != nil {
			return tasks, fmt.Errorf("failed to marshal payload: %w", err)
		}

		task := p.CreateTask(SearchTaskType, string(payload))
		if err := p.PublishTask(ctx, task); err != nil {
			return tasks, fmt.Errorf("hop count %d: %w", h, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (p *TaskPublisher) GetTaskResult(ctx context.Context, taskID string) (*TaskResult, error) {
	result, _, err := p.lookupResult(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("no result found for task: %s", taskID)
	}
	return result, nil
}

// lookupResult also returns the store revision the read was served at
func (p *TaskPublisher) lookupResult(ctx context.Context, taskID string) (*TaskResult, int64, error) {
	resp, err := p.kv.Get(ctx, ResultPrefix+taskID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get task result: %w", err)
	}

	var revision int64
	if resp.Header != nil {
		revision = resp.Header.Revision
	}
	if len(resp.Kvs) == 0 {
		return nil, revision, nil
	}

	var result TaskResult
	if err := json.Unmarshal(resp.Kvs[0].Value, &result); err != nil {
		return nil, revision, fmt.Errorf("failed to unmarshal task result: %w", err)
	}
	return &result, revision, nil
}

// WaitForResult returns the stored result of taskID, watching for it when it
// is not there yet.
func (p *TaskPublisher) WaitForResult(ctx context.Context, taskID string, timeout time.Duration) (*TaskResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, revision, err := p.lookupResult(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	watchChan := p.client.Watch(ctx, ResultPrefix+taskID, clientv3.WithRev(revision+1))
	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("timeout waiting for result of task %s", taskID)
			}
			return nil, ctx.Err()

		case resp, ok := <-watchChan:
			if !ok {
				return nil, fmt.Errorf("watch channel closed")
			}
			for _, event := range resp.Events {
				if event.Type != clientv3.EventTypePut {
					continue
				}
				var result TaskResult
				if err := json.Unmarshal(event.Kv.Value, &result); err != nil {
					log.Warningf("Failed to unmarshal task result: %v", err)
					continue
				}
				return &result, nil
			}
		}
	}
}

// CollectSearches waits for every search task and decodes its stats. A failed
// task turns into an error naming its hop count.
func (p *TaskPublisher) CollectSearches(ctx context.Context, tasks []Task, timeout time.Duration) (map[common.HopCount]path_search.Stats, error) {
	out := make(map[common.HopCount]path_search.Stats, len(tasks))
	for _, task := range tasks {
		var payload SearchPayload
		if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
			return out, fmt.Errorf("task %s: invalid payload: %w", task.ID, err)
		}

		log.Infof("[%s] Waiting for result of task: %s (%s)", p.publisherID, task.ID, payload.HopCount)
		result, err := p.WaitForResult(ctx, task.ID, timeout)
		if err != nil {
			return out, err
		}

		stats, err := DecodeSearchResult(result)
		if err != nil {
			return out, fmt.Errorf("hop count %d: %w", payload.HopCount, err)
		}
		out[payload.HopCount] = stats
	}
	return out, nil
}

func DecodeSearchResult(result *TaskResult) (path_search.Stats, error) {
	if result.Error != "" {
		return path_search.Stats{}, fmt.Errorf("task %s failed: %s", result.TaskID, result.Error)
	}
	var stats path_search.Stats
	if err := json.Unmarshal([]byte(result.Result), &stats); err != nil {
		return path_search.Stats{}, fmt.Errorf("task %s: invalid stats: %w", result.TaskID, err)
	}
	return stats, nil
}
