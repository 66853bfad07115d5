package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fast01/latypus/registry"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestSlotPoolAcquireRelease(t *testing.T) {
	pool := NewSlotPool(4, 64, 64)
	if pool.Capacity() != 4 {
		t.Fatalf("Capacity() = %d, want 4", pool.Capacity())
	}

	var acquired []*Connection
	for i := 0; i < 4; i++ {
		c, ok := pool.Acquire()
		if !ok {
			t.Fatalf("acquire %d should have succeeded", i)
		}
		acquired = append(acquired, c)
	}
	if _, ok := pool.Acquire(); ok {
		t.Fatal("acquire on saturated pool should fail")
	}
	if pool.InUse() != 4 {
		t.Fatalf("InUse() = %d, want 4", pool.InUse())
	}

	pool.Release(acquired[0])
	if pool.InUse() != 3 {
		t.Fatalf("InUse() after release = %d, want 3", pool.InUse())
	}
	c, ok := pool.Acquire()
	if !ok {
		t.Fatal("acquire after release should succeed")
	}
	if c.ID != acquired[0].ID {
		t.Fatalf("expected to reclaim slot %d, got %d", acquired[0].ID, c.ID)
	}
}

func TestEngineDispatchRunsAction(t *testing.T) {
	proto := registry.NewProtocol("test_dispatch_proto")
	var ran atomic.Int32
	actionID := proto.Action.Register("increment", registry.Action{
		Name: "increment",
		Run: func(conn any) error {
			ran.Add(1)
			return nil
		},
	})
	proto.State.Register("free", registry.State{Name: "free"})

	cfg := DefaultConfig()
	cfg.Threads = 1
	cfg.MaxConnections = 4
	e, err := New(cfg, proto, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	}()

	conn, ok := e.Slots().Acquire()
	if !ok {
		t.Fatal("acquire failed")
	}
	conn.Protocol = proto

	if !e.Dispatch(0, registry.Message{Action: actionID, ConnectionID: conn.ID}) {
		t.Fatal("dispatch should have succeeded")
	}

	deadline := time.Now().Add(2 * time.Second)
	for ran.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if ran.Load() != 1 {
		t.Fatalf("action ran %d times, want 1", ran.Load())
	}
}

func TestChooseThreadRoundRobins(t *testing.T) {
	proto := registry.NewProtocol("test_round_robin_proto")
	cfg := DefaultConfig()
	cfg.Threads = 3
	cfg.MaxConnections = 4
	e, err := New(cfg, proto, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	}()

	seen := map[int]bool{}
	for i := 0; i < 6; i++ {
		seen[e.ChooseThread()] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected all 3 threads chosen over 6 rounds, saw %d distinct", len(seen))
	}
}
