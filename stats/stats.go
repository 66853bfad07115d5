// Package stats provides the engine's metrics surface: a zero-overhead
// atomic-counter snapshot, in the same spirit as the teacher's
// core/pool_stats.go and core/observability/monitor.go, extended to
// cover the thread-pool scheduler this engine is built around (slot
// occupancy, per-thread inbox depth) rather than the teacher's
// sync.Pool-based memory pools.
package stats

import (
	"fmt"
	"sync/atomic"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fast01/latypus/engine"
)

// Counters are the request-path atomics a protocol implementation bumps
// directly; Engine fills in the slot/queue gauges at snapshot time.
type Counters struct {
	Requests  atomic.Uint64
	Errors    atomic.Uint64
	Accepted  atomic.Uint64
	Closed    atomic.Uint64
	TimedOut  atomic.Uint64
	BytesRead atomic.Uint64
	BytesSent atomic.Uint64
}

// ThreadStats reports one ProtocolThread's load at snapshot time.
type ThreadStats struct {
	Index         int     `json:"index"`
	InboxDepth    int     `json:"inbox_depth"`
	InboxCapacity int     `json:"inbox_capacity"`
	InboxFillRate float64 `json:"inbox_fill_rate"`
}

// Snapshot is a point-in-time view of an engine's health, the
// SPEC_FULL.md equivalent of the teacher's PoolStats: connection-slot
// occupancy per protocol and MPMC queue depth per thread, plus the
// request counters a handler records.
type Snapshot struct {
	SlotsInUse    int           `json:"slots_in_use"`
	SlotsTotal    int           `json:"slots_total"`
	SlotFillRate  float64       `json:"slot_fill_rate"`
	Threads       []ThreadStats `json:"threads"`
	Requests      uint64        `json:"requests"`
	Errors        uint64        `json:"errors"`
	Accepted      uint64        `json:"accepted"`
	Closed        uint64        `json:"closed"`
	TimedOut      uint64        `json:"timed_out"`
	BytesRead     uint64        `json:"bytes_read"`
	BytesSent     uint64        `json:"bytes_sent"`
}

// Snapshot reads eng's slot pool and thread inboxes alongside c's
// request counters into a single point-in-time Snapshot.
func (c *Counters) Snapshot(eng *engine.Engine) Snapshot {
	slots := eng.Slots()
	total := slots.Capacity()
	inUse := slots.InUse()

	threads := eng.Threads()
	ts := make([]ThreadStats, len(threads))
	for i, th := range threads {
		depth := th.InboxDepth()
		capacity := th.InboxCapacity()
		fill := 0.0
		if capacity > 0 {
			fill = float64(depth) / float64(capacity)
		}
		ts[i] = ThreadStats{Index: th.Index, InboxDepth: depth, InboxCapacity: capacity, InboxFillRate: fill}
	}

	fill := 0.0
	if total > 0 {
		fill = float64(inUse) / float64(total)
	}

	return Snapshot{
		SlotsInUse:   inUse,
		SlotsTotal:   total,
		SlotFillRate: fill,
		Threads:      ts,
		Requests:     c.Requests.Load(),
		Errors:       c.Errors.Load(),
		Accepted:     c.Accepted.Load(),
		Closed:       c.Closed.Load(),
		TimedOut:     c.TimedOut.Load(),
		BytesRead:    c.BytesRead.Load(),
		BytesSent:    c.BytesSent.Load(),
	}
}

// Text renders the snapshot as a human-readable report, in the style of
// the teacher's GetPoolStatsText.
func (s Snapshot) Text() string {
	report := fmt.Sprintf(`Engine Statistics
=================

Connection Slots:
  In use:    %d / %d
  Fill rate: %.2f%%

Requests:
  Total:     %d
  Errors:    %d
  Accepted:  %d
  Closed:    %d
  Timed out: %d

Bytes:
  Read: %d
  Sent: %d

Threads:
`,
		s.SlotsInUse, s.SlotsTotal, s.SlotFillRate*100,
		s.Requests, s.Errors, s.Accepted, s.Closed, s.TimedOut,
		s.BytesRead, s.BytesSent,
	)
	for _, t := range s.Threads {
		report += fmt.Sprintf("  [%d] inbox %d/%d (%.1f%%)\n", t.Index, t.InboxDepth, t.InboxCapacity, t.InboxFillRate*100)
	}
	return report
}

// Proto encodes the snapshot as a structpb.Struct, the well-known
// protobuf message that needs no generated .proto code, so an operator
// can request a binary stats snapshot the same way core/rpc/codec
// offers protobuf as one of several wire codecs — reserved for
// off-hot-path export, never the per-message queue payload.
func (s Snapshot) Proto() (*structpb.Struct, error) {
	threads := make([]any, len(s.Threads))
	for i, t := range s.Threads {
		threads[i] = map[string]any{
			"index":           float64(t.Index),
			"inbox_depth":     float64(t.InboxDepth),
			"inbox_capacity":  float64(t.InboxCapacity),
			"inbox_fill_rate": t.InboxFillRate,
		}
	}
	return structpb.NewStruct(map[string]any{
		"slots_in_use":   float64(s.SlotsInUse),
		"slots_total":    float64(s.SlotsTotal),
		"slot_fill_rate": s.SlotFillRate,
		"threads":        threads,
		"requests":       float64(s.Requests),
		"errors":         float64(s.Errors),
		"accepted":       float64(s.Accepted),
		"closed":         float64(s.Closed),
		"timed_out":      float64(s.TimedOut),
		"bytes_read":     float64(s.BytesRead),
		"bytes_sent":     float64(s.BytesSent),
	})
}
