package etcd

import (
	"context"
	"sync"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// fakeKV is an in-memory clientv3.KV covering the calls the tasks make
type fakeKV struct {
	clientv3.KV

	mu         sync.Mutex
	data       map[string]string
	putOrder   []string
	claimFails bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = val
	f.putOrder = append(f.putOrder, key)
	return &clientv3.PutResponse{}, nil
}

func (f *fakeKV) Get(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &clientv3.GetResponse{}
	if val, ok := f.data[key]; ok {
		resp.Kvs = []*mvccpb.KeyValue{{Key: []byte(key), Value: []byte(val)}}
	}
	return resp, nil
}

func (f *fakeKV) Txn(_ context.Context) clientv3.Txn {
	return &fakeTxn{kv: f}
}

func (f *fakeKV) value(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.data[key]
	return val, ok
}

type fakeTxn struct {
	kv  *fakeKV
	ops []clientv3.Op
}

func (t *fakeTxn) If(_ ...clientv3.Cmp) clientv3.Txn { return t }

func (t *fakeTxn) Then(ops ...clientv3.Op) clientv3.Txn {
	t.ops = append(t.ops, ops...)
	return t
}

func (t *fakeTxn) Else(_ ...clientv3.Op) clientv3.Txn { return t }

func (t *fakeTxn) Commit() (*clientv3.TxnResponse, error) {
	if t.kv.claimFails {
		return &clientv3.TxnResponse{Succeeded: false}, nil
	}
	for _, op := range t.ops {
		_, _ = t.kv.Put(context.Background(), string(op.KeyBytes()), string(op.ValueBytes()))
	}
	return &clientv3.TxnResponse{Succeeded: true}, nil
}
