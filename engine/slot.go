package engine

import (
	"sync"
	"time"

	"github.com/fast01/latypus/netio"
	"github.com/fast01/latypus/queue"
	"github.com/fast01/latypus/registry"
)

// Connection is one engine-owned connection slot: a socket plus the
// protocol state it is currently in, owned at any moment by exactly one
// ProtocolThread. Cross-thread handoff happens only through queued
// Messages naming a connection's ID, never through direct mutation from
// another thread.
type Connection struct {
	ID       int
	Sock     *netio.Socket
	Protocol *registry.Protocol
	State    int

	ThreadIdx int

	ReadBuf  []byte
	WriteBuf []byte

	LastActive time.Time
	CloseAfter bool

	// UserData holds protocol-specific in-flight state (a parsed request,
	// a pending response, a host-pool membership) opaque to the engine.
	UserData any

	inUse bool
}

// Reset clears a connection slot for reuse, matching the teacher's
// ConnectionPoolable pattern of zeroing state before a slot re-enters
// the free list.
func (c *Connection) Reset() {
	c.Sock = nil
	c.Protocol = nil
	c.State = 0
	c.ThreadIdx = 0
	c.ReadBuf = c.ReadBuf[:0]
	c.WriteBuf = c.WriteBuf[:0]
	c.LastActive = time.Time{}
	c.CloseAfter = false
	c.UserData = nil
	c.inUse = false
}

// SlotPool is a fixed-capacity table of connection slots with a
// lock-free free-list built on queue.Queue, per SPEC_FULL.md's note
// that the same bounded MPMC queue backs both message passing and
// free-list management.
type SlotPool struct {
	mu    sync.RWMutex
	slots []*Connection
	free  *queue.Queue[int]
}

// NewSlotPool creates a pool of capacity slots, all initially free.
func NewSlotPool(capacity int, ioBufferSize, headerBufferSize int) *SlotPool {
	p := &SlotPool{
		slots: make([]*Connection, capacity),
		free:  queue.New[int](capacity),
	}
	for i := 0; i < capacity; i++ {
		p.slots[i] = &Connection{
			ID:       i,
			ReadBuf:  make([]byte, 0, ioBufferSize+headerBufferSize),
			WriteBuf: make([]byte, 0, ioBufferSize),
		}
		box := i
		p.free.PushBack(box)
	}
	return p
}

// Acquire claims a free slot, returning ok=false if the pool is
// saturated (the server_connections/client_connections cap has been
// reached).
func (p *SlotPool) Acquire() (*Connection, bool) {
	id, ok := p.free.PopFront()
	if !ok {
		return nil, false
	}
	p.mu.Lock()
	conn := p.slots[id]
	conn.inUse = true
	p.mu.Unlock()
	return conn, true
}

// Release returns a slot to the free list after resetting it.
func (p *SlotPool) Release(conn *Connection) {
	conn.Reset()
	p.free.PushBack(conn.ID)
}

// Get returns the slot for id, for cross-thread message dispatch that
// only carries a connection ID.
func (p *SlotPool) Get(id int) *Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.slots[id]
}

// Capacity returns the total number of slots in the pool.
func (p *SlotPool) Capacity() int {
	return len(p.slots)
}

// InUse reports how many slots are currently checked out, for stats
// reporting.
func (p *SlotPool) InUse() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, s := range p.slots {
		if s.inUse {
			n++
		}
	}
	return n
}
