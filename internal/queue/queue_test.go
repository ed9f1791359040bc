package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"trainhub/internal/task"
)

func newTestQueue(t *testing.T) (*RedisQueue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), client
}

func TestEnqueueWritesPayloadWithHandle(t *testing.T) {
	t.Parallel()
	q, client := newTestQueue(t)
	ctx := context.Background()

	handle, err := q.Enqueue(ctx, "t1", task.Config{DatasetID: "d1", Epochs: 3}, task.EnqueueOptions{
		Timeout:         30 * time.Second,
		ResultRetention: time.Hour,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if handle == "" {
		t.Fatal("empty handle")
	}

	queued, err := client.LRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	if len(queued) != 1 || queued[0] != handle {
		t.Errorf("queued handles = %v, want [%s]", queued, handle)
	}

	data, err := client.Get(ctx, payloadKey(handle)).Bytes()
	if err != nil {
		t.Fatalf("payload not readable for queued handle: %v", err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.Handle != handle || p.TaskID != "t1" {
		t.Errorf("payload identity = %s/%s, want %s/t1", p.Handle, p.TaskID, handle)
	}
	if p.Config.DatasetID != "d1" || p.Config.Epochs != 3 {
		t.Errorf("payload config = %+v", p.Config)
	}
	if p.TimeoutSeconds != 30 {
		t.Errorf("payload timeout = %d, want 30", p.TimeoutSeconds)
	}

	ttl, err := client.TTL(ctx, payloadKey(handle)).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("payload TTL = %v, want bounded by retention", ttl)
	}
}

func TestEnqueueAppliesDefaults(t *testing.T) {
	t.Parallel()
	q, client := newTestQueue(t)
	ctx := context.Background()

	handle, err := q.Enqueue(ctx, "t1", task.Config{DatasetID: "d1", Epochs: 1}, task.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	data, err := client.Get(ctx, payloadKey(handle)).Bytes()
	if err != nil {
		t.Fatalf("Get payload: %v", err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if want := int(defaultTimeout.Seconds()); p.TimeoutSeconds != want {
		t.Errorf("payload timeout = %d, want default %d", p.TimeoutSeconds, want)
	}
}

func TestCancelRemovesQueuedHandle(t *testing.T) {
	t.Parallel()
	q, client := newTestQueue(t)
	ctx := context.Background()

	handle, err := q.Enqueue(ctx, "t1", task.Config{DatasetID: "d1", Epochs: 1}, task.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ok, err := q.Cancel(ctx, handle)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !ok {
		t.Error("Cancel = false, want true")
	}

	if n, _ := client.LLen(ctx, queueKey).Result(); n != 0 {
		t.Errorf("queue length after cancel = %d, want 0", n)
	}
	if n, _ := client.Exists(ctx, cancelKey(handle)).Result(); n != 1 {
		t.Error("cancel marker not set")
	}
}

func TestCancelEmptyHandle(t *testing.T) {
	t.Parallel()
	q, _ := newTestQueue(t)

	ok, err := q.Cancel(context.Background(), "")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if ok {
		t.Error("Cancel of empty handle = true, want false")
	}
}

func TestQueueReady(t *testing.T) {
	t.Parallel()
	q, _ := newTestQueue(t)

	if err := q.Ready(context.Background()); err != nil {
		t.Errorf("Ready: %v", err)
	}
}
