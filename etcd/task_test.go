package etcd

import (
	"context"
	"encoding/json"
	"errors"
	"multihop/common"
	"multihop/path_search"
	"multihop/results"
	"multihop/segment"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	stats path_search.Stats
	err   error
	calls []common.HopCount
}

func (r *fakeRunner) Search(_ context.Context, h common.HopCount) (path_search.Stats, error) {
	r.calls = append(r.calls, h)
	stats := r.stats
	stats.Hops = h
	return stats, r.err
}

func searchTask(t *testing.T, h common.HopCount) Task {
	payload, err := json.Marshal(SearchPayload{HopCount: h})
	require.NoError(t, err)
	return Task{ID: "task-1", Type: SearchTaskType, Payload: string(payload), Status: StatusPending}
}

func TestSearchProcessor(t *testing.T) {
	runner := &fakeRunner{stats: path_search.Stats{Pairs: 6, Found: 4}}
	processor := NewSearchProcessor(runner)

	out, err := processor(context.Background(), searchTask(t, 3))
	require.NoError(t, err)
	assert.Equal(t, []common.HopCount{3}, runner.calls)

	var stats path_search.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, common.HopCount(3), stats.Hops)
	assert.Equal(t, int64(6), stats.Pairs)
	assert.Equal(t, int64(4), stats.Found)
}

func TestSearchProcessorRejectsBadPayload(t *testing.T) {
	runner := &fakeRunner{}
	processor := NewSearchProcessor(runner)

	_, err := processor(context.Background(), Task{Type: SearchTaskType, Payload: "{"})
	assert.Error(t, err)
	assert.Empty(t, runner.calls)
}

func TestSearchProcessorPropagatesSearchError(t *testing.T) {
	processor := NewSearchProcessor(&fakeRunner{err: path_search.ErrInvalidHopCount})

	_, err := processor(context.Background(), searchTask(t, 7))
	assert.ErrorIs(t, err, path_search.ErrInvalidHopCount)
}

func newTestWorker(kv *fakeKV) *TaskWorker {
	return &TaskWorker{
		kv:         kv,
		workerID:   "worker-test",
		processors: make(map[string]TaskProcessor),
	}
}

func putTask(t *testing.T, kv *fakeKV, task Task) (string, []byte) {
	data, err := json.Marshal(task)
	require.NoError(t, err)
	key := TaskPrefix + task.ID
	kv.data[key] = string(data)
	return key, data
}

func storedTask(t *testing.T, kv *fakeKV, key string) Task {
	raw, ok := kv.value(key)
	require.True(t, ok)
	var task Task
	require.NoError(t, json.Unmarshal([]byte(raw), &task))
	return task
}

func TestWorkerRunsSearchTask(t *testing.T) {
	topology := segment.NewTopology()
	topology.AddLink(1, 2, 1)
	topology.AddLink(2, 3, 2)
	sink := results.NewMemorySink()
	engine := path_search.NewEngine([]common.ProbeID{1, 2, 3}, segment.NewStore(topology), sink)

	kv := newFakeKV()
	worker := newTestWorker(kv)
	worker.RegisterProcessor(SearchTaskType, NewSearchProcessor(engine))

	key, value := putTask(t, kv, searchTask(t, 2))
	worker.handleTask(context.Background(), key, value, 1)

	assert.Equal(t, StatusCompleted, storedTask(t, kv, key).Status)

	raw, ok := kv.value(ResultPrefix + "task-1")
	require.True(t, ok)
	var result TaskResult
	require.NoError(t, json.Unmarshal([]byte(raw), &result))
	assert.Empty(t, result.Error)

	stats, err := DecodeSearchResult(&result)
	require.NoError(t, err)
	assert.Equal(t, common.HopCount(2), stats.Hops)

	got, ok := sink.Get(1, 3, 2)
	require.True(t, ok)
	assert.Equal(t, 3.0, got.Latency)
	assert.Equal(t, []common.ProbeID{2}, got.Via)
}

func TestWorkerRecordsFailure(t *testing.T) {
	kv := newFakeKV()
	worker := newTestWorker(kv)
	worker.RegisterProcessor(SearchTaskType, NewSearchProcessor(&fakeRunner{err: errors.New("boom")}))

	key, value := putTask(t, kv, searchTask(t, 2))
	worker.handleTask(context.Background(), key, value, 1)

	assert.Equal(t, StatusFailed, storedTask(t, kv, key).Status)

	raw, ok := kv.value(ResultPrefix + "task-1")
	require.True(t, ok)
	var result TaskResult
	require.NoError(t, json.Unmarshal([]byte(raw), &result))
	assert.Equal(t, "boom", result.Error)

	_, err := DecodeSearchResult(&result)
	assert.Error(t, err)
}

func TestWorkerSkipsClaimedTask(t *testing.T) {
	kv := newFakeKV()
	kv.claimFails = true
	runner := &fakeRunner{}
	worker := newTestWorker(kv)
	worker.RegisterProcessor(SearchTaskType, NewSearchProcessor(runner))

	key, value := putTask(t, kv, searchTask(t, 2))
	worker.handleTask(context.Background(), key, value, 1)

	assert.Empty(t, runner.calls)
	assert.Equal(t, StatusPending, storedTask(t, kv, key).Status)
	_, ok := kv.value(ResultPrefix + "task-1")
	assert.False(t, ok)
}

func TestWorkerIgnoresNonPendingAndUnknownTasks(t *testing.T) {
	kv := newFakeKV()
	runner := &fakeRunner{}
	worker := newTestWorker(kv)
	worker.RegisterProcessor(SearchTaskType, NewSearchProcessor(runner))

	done := searchTask(t, 2)
	done.Status = StatusCompleted
	key, value := putTask(t, kv, done)
	worker.handleTask(context.Background(), key, value, 1)

	unknown := Task{ID: "task-2", Type: "math.add", Payload: "{}", Status: StatusPending}
	key, value = putTask(t, kv, unknown)
	worker.handleTask(context.Background(), key, value, 1)

	worker.handleTask(context.Background(), TaskPrefix+"task-3", []byte("not json"), 1)

	assert.Empty(t, runner.calls)
	assert.Empty(t, kv.putOrder)
}

func TestWorkerDispatchOnPool(t *testing.T) {
	pool, err := ants.NewPool(2)
	require.NoError(t, err)
	defer pool.Release()

	kv := newFakeKV()
	runner := &fakeRunner{}
	worker := newTestWorker(kv)
	worker.pool = pool
	worker.RegisterProcessor(SearchTaskType, NewSearchProcessor(runner))

	key, value := putTask(t, kv, searchTask(t, 4))
	worker.dispatch(context.Background(), key, value, 1)
	worker.wg.Wait()

	assert.Equal(t, []common.HopCount{4}, runner.calls)
	assert.Equal(t, StatusCompleted, storedTask(t, kv, key).Status)
}

func TestPublishSearches(t *testing.T) {
	kv := newFakeKV()
	publisher := &TaskPublisher{kv: kv, publisherID: "publisher-test"}

	tasks, err := publisher.PublishSearches(context.Background(), common.AllHopCounts)
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	seen := make(map[string]bool)
	for i, task := range tasks {
		assert.False(t, seen[task.ID], "task ids are unique")
		seen[task.ID] = true

		stored := storedTask(t, kv, TaskPrefix+task.ID)
		assert.Equal(t, SearchTaskType, stored.Type)
		assert.Equal(t, StatusPending, stored.Status)

		var payload SearchPayload
		require.NoError(t, json.Unmarshal([]byte(stored.Payload), &payload))
		assert.Equal(t, common.AllHopCounts[i], payload.HopCount)
	}
}

func TestPublishSearchesRejectsInvalidHopCount(t *testing.T) {
	kv := newFakeKV()
	publisher := &TaskPublisher{kv: kv, publisherID: "publisher-test"}

	tasks, err := publisher.PublishSearches(context.Background(), []common.HopCount{1, 5})
	assert.ErrorIs(t, err, path_search.ErrInvalidHopCount)
	assert.Len(t, tasks, 1)
}

func TestCollectSearches(t *testing.T) {
	kv := newFakeKV()
	publisher := &TaskPublisher{kv: kv, publisherID: "publisher-test"}

	tasks, err := publisher.PublishSearches(context.Background(), []common.HopCount{1, 2})
	require.NoError(t, err)

	for i, task := range tasks {
		stats, _ := json.Marshal(path_search.Stats{Hops: common.HopCount(i + 1), Found: int64(10 + i)})
		result, _ := json.Marshal(TaskResult{TaskID: task.ID, Result: string(stats)})
		kv.data[ResultPrefix+task.ID] = string(result)
	}

	out, err := publisher.CollectSearches(context.Background(), tasks, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(10), out[1].Found)
	assert.Equal(t, int64(11), out[2].Found)

	got, err := publisher.GetTaskResult(context.Background(), tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, tasks[0].ID, got.TaskID)

	_, err = publisher.GetTaskResult(context.Background(), "missing")
	assert.Error(t, err)
}
