// Package engine implements the thread-pool scheduler and connection
// lifecycle machinery shared by every wire protocol: a fixed set of
// ProtocolThreads, each owning a Pollset and a slice of connection
// slots, coordinated through registry.Message values carried on bounded
// MPMC queues. Package httpproto supplies the protocol-specific state
// and action callbacks; engine only knows how to schedule them.
package engine

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fast01/latypus/netio"
	"github.com/fast01/latypus/registry"
)

// Config bounds an Engine's resource usage, corresponding to
// SPEC_FULL.md's engine-wide options (io_buffer_size,
// header_buffer_size, connection_timeout, server_connections/
// client_connections, threads).
type Config struct {
	Threads           int
	IOBufferSize      int
	HeaderBufferSize  int
	ConnectionTimeout time.Duration
	MaxConnections    int
	InboxCapacity     int
}

// DefaultConfig returns the engine defaults used when a config file
// leaves a field unset.
func DefaultConfig() Config {
	return Config{
		Threads:           4,
		IOBufferSize:      8192,
		HeaderBufferSize:  8192,
		ConnectionTimeout: 60 * time.Second,
		MaxConnections:    4096,
		InboxCapacity:     1024,
	}
}

// Engine owns a fixed thread pool and the connection slots those
// threads dispatch work against. One Engine serves one registered
// Protocol (an HTTP server engine and an HTTP client engine are two
// separate Engines, matching the original design's per-protocol
// engines).
type Engine struct {
	cfg      Config
	protocol *registry.Protocol
	log      *logrus.Logger

	threads []*ProtocolThread
	slots   *SlotPool

	nextThread atomic.Uint64

	listeners []*net.TCPListener
}

// New constructs an Engine for proto with cfg.Threads protocol threads
// and a slot pool sized to cfg.MaxConnections.
func New(cfg Config, proto *registry.Protocol, log *logrus.Logger) (*Engine, error) {
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	e := &Engine{
		cfg:      cfg,
		protocol: proto,
		log:      log,
		slots:    NewSlotPool(cfg.MaxConnections, cfg.IOBufferSize, cfg.HeaderBufferSize),
	}
	for i := 0; i < cfg.Threads; i++ {
		entry := log.WithFields(logrus.Fields{"protocol": proto.Name, "thread": i})
		th, err := NewProtocolThread(i, e.slots, cfg.InboxCapacity, cfg.ConnectionTimeout, entry)
		if err != nil {
			return nil, fmt.Errorf("engine: starting thread %d: %w", i, err)
		}
		e.threads = append(e.threads, th)
	}
	return e, nil
}

// Slots returns the engine's connection slot pool.
func (e *Engine) Slots() *SlotPool { return e.slots }

// Threads returns the engine's protocol threads, in index order.
func (e *Engine) Threads() []*ProtocolThread { return e.threads }

// ChooseThread returns the next thread index in round-robin order, used
// to load-balance accepted connections and outbound requests across the
// thread pool.
func (e *Engine) ChooseThread() int {
	n := uint64(len(e.threads))
	idx := e.nextThread.Add(1) - 1
	return int(idx % n)
}

// Start launches every protocol thread's event loop on its own
// goroutine.
func (e *Engine) Start() {
	for _, th := range e.threads {
		go th.Run()
	}
}

// Shutdown closes any listeners opened via Listen and stops every
// protocol thread, waiting up to the context deadline for each thread's
// event loop to exit. Connections still open are neither drained nor
// closed.
func (e *Engine) Shutdown(ctx context.Context) error {
	for _, ln := range e.listeners {
		_ = ln.Close()
	}
	var firstErr error
	for _, th := range e.threads {
		if err := th.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Listen opens a listening socket on addr and records it for Shutdown
// to close. The listener is not registered with any pollset; accepting
// connections (calling netio.Accept) is the caller's responsibility,
// since only the HTTP server protocol defines an "accept" action.
func (e *Engine) Listen(addr string) (*net.TCPListener, int, error) {
	ln, fd, err := netio.Listen(addr)
	if err != nil {
		return nil, 0, err
	}
	e.listeners = append(e.listeners, ln)
	return ln, fd, nil
}

// Dispatch posts msg to the inbox of the thread owning its target
// connection, returning false if that thread's inbox is saturated.
func (e *Engine) Dispatch(threadIdx int, msg registry.Message) bool {
	if threadIdx < 0 || threadIdx >= len(e.threads) {
		return false
	}
	return e.threads[threadIdx].Post(msg)
}
