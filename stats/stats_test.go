package stats

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fast01/latypus/engine"
	"github.com/fast01/latypus/registry"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	log := logrus.New()
	log.SetOutput(testWriter{t})

	proto := registry.NewProtocol("stats_test")
	cfg := engine.Config{
		Threads:           2,
		IOBufferSize:      512,
		HeaderBufferSize:  512,
		ConnectionTimeout: time.Second,
		MaxConnections:    4,
		InboxCapacity:     8,
	}
	eng, err := engine.New(cfg, proto, log)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestSnapshotReflectsSlotUsage(t *testing.T) {
	eng := testEngine(t)
	var c Counters
	c.Requests.Store(10)
	c.Errors.Store(1)

	conn, ok := eng.Slots().Acquire()
	if !ok {
		t.Fatal("acquire failed")
	}
	defer eng.Slots().Release(conn)

	snap := c.Snapshot(eng)
	if snap.SlotsInUse != 1 {
		t.Fatalf("SlotsInUse = %d, want 1", snap.SlotsInUse)
	}
	if snap.SlotsTotal != 4 {
		t.Fatalf("SlotsTotal = %d, want 4", snap.SlotsTotal)
	}
	if snap.Requests != 10 || snap.Errors != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if len(snap.Threads) != 2 {
		t.Fatalf("Threads = %d, want 2", len(snap.Threads))
	}
}

func TestSnapshotProtoRoundTrips(t *testing.T) {
	eng := testEngine(t)
	var c Counters
	c.Requests.Store(3)

	snap := c.Snapshot(eng)
	pb, err := snap.Proto()
	if err != nil {
		t.Fatalf("Proto: %v", err)
	}
	got := pb.Fields["requests"].GetNumberValue()
	if got != 3 {
		t.Fatalf("requests = %v, want 3", got)
	}
}

func TestSnapshotText(t *testing.T) {
	eng := testEngine(t)
	var c Counters
	text := c.Snapshot(eng).Text()
	if text == "" {
		t.Fatal("expected non-empty report")
	}
}
