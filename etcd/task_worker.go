package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"multihop/structs"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type TaskWorker struct {
	client     *clientv3.Client
	kv         clientv3.KV
	workerID   string
	processors map[string]TaskProcessor
	pool       *ants.Pool
	wg         sync.WaitGroup
}

// NewTaskWorker connects to etcd. Tasks run on pool when it is not nil,
// otherwise on their own goroutine.
func NewTaskWorker(cfg structs.EtcdConfig, pool *ants.Pool) (*TaskWorker, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	return &TaskWorker{
		client:     client,
		kv:         client,
		workerID:   fmt.Sprintf("worker-%d", time.Now().Unix()),
		processors: make(map[string]TaskProcessor),
		pool:       pool,
	}, nil
}

func (w *TaskWorker) Close() {
	w.wg.Wait()
	if w.client != nil {
		w.client.Close()
	}
}

func (w *TaskWorker) RegisterProcessor(taskType string, processor TaskProcessor) {
	w.processors[taskType] = processor
}

// Start handles the tasks already pending, then every task put afterwards,
// until ctx is done.
func (w *TaskWorker) Start(ctx context.Context) error {
	log.Infof("[%s] Worker starting...", w.workerID)
	for taskType := range w.processors {
		log.Infof("[%s] - %s", w.workerID, taskType)
	}

	resp, err := w.kv.Get(ctx, TaskPrefix, clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	for _, kv := range resp.Kvs {
		w.dispatch(ctx, string(kv.Key), kv.Value, kv.ModRevision)
	}

	watchChan := w.client.Watch(ctx, TaskPrefix, clientv3.WithPrefix(), clientv3.WithRev(resp.Header.Revision+1))
	for {
		select {
		case <-ctx.Done():
			log.Infof("[%s] Worker shutting down...", w.workerID)
			return nil

		case resp, ok := <-watchChan:
			if !ok {
				return fmt.Errorf("watch channel closed")
			}
			if err := resp.Err(); err != nil {
				return fmt.Errorf("watch failed: %w", err)
			}
			for _, event := range resp.Events {
				if event.Type == clientv3.EventTypePut {
					w.dispatch(ctx, string(event.Kv.Key), event.Kv.Value, event.Kv.ModRevision)
				}
			}
		}
	}
}

func (w *TaskWorker) dispatch(ctx context.Context, key string, value []byte, modRevision int64) {
	w.wg.Add(1)
	run := func() {
		defer w.wg.Done()
		w.handleTask(ctx, key, value, modRevision)
	}

	if w.pool == nil {
		go run()
		return
	}
	if err := w.pool.Submit(run); err != nil {
		log.Errorf("[%s] Failed to submit task %s: %v", w.workerID, key, err)
		w.wg.Done()
	}
}

func (w *TaskWorker) handleTask(ctx context.Context, key string, value []byte, modRevision int64) {
	var task Task
	if err := json.Unmarshal(value, &task); err != nil {
		log.Errorf("[%s] Failed to unmarshal task: %v", w.workerID, err)
		return
	}

	if task.Status != StatusPending {
		return
	}

	processor, ok := w.processors[task.Type]
	if !ok {
		log.Errorf("[%s] No processor registered for task type: %s", w.workerID, task.Type)
		return
	}

	// claim the task only if nobody touched it since we saw it
	task.Status = StatusProcessing
	taskJSON, _ := json.Marshal(task)
	txnResp, err := w.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", modRevision)).
		Then(clientv3.OpPut(key, string(taskJSON))).
		Commit()
	if err != nil {
		log.Errorf("[%s] Failed to update task status: %v", w.workerID, err)
		return
	}
	if !txnResp.Succeeded {
		log.Debugf("[%s] Task %s already claimed", w.workerID, task.ID)
		return
	}

	log.Infof("[%s] Processing task: %s (Type: %s)", w.workerID, task.ID, task.Type)

	result, err := processor(ctx, task)

	taskResult := TaskResult{
		TaskID:      task.ID,
		CompletedAt: time.Now(),
	}
	if err != nil {
		task.Status = StatusFailed
		taskResult.Error = err.Error()
		log.Errorf("[%s] Task processing failed: %s - %v", w.workerID, task.ID, err)
	} else {
		task.Status = StatusCompleted
		taskResult.Result = result
		log.Infof("[%s] Task completed successfully: %s - Result: %s", w.workerID, task.ID, result)
	}

	resultJSON, _ := json.Marshal(taskResult)
	if _, err := w.kv.Put(ctx, ResultPrefix+task.ID, string(resultJSON)); err != nil {
		log.Errorf("[%s] Failed to store task result: %v", w.workerID, err)
		return
	}

	taskJSON, _ = json.Marshal(task)
	if _, err := w.kv.Put(ctx, key, string(taskJSON)); err != nil {
		log.Errorf("[%s] Failed to update task status after completion: %v", w.workerID, err)
	}
}
