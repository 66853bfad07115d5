package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fast01/latypus/poller"
	"github.com/fast01/latypus/queue"
	"github.com/fast01/latypus/registry"
)

// waitTimeoutMS bounds how long a thread's pollset.Wait blocks before
// returning to drain its inbox and sweep for timed-out connections, the
// same coarse-polling discipline as the teacher engine's poller.Wait(100).
const waitTimeoutMS = 100

// ProtocolThread is a single event loop: it owns a pollset and a set of
// connection slots, and is the only goroutine that ever touches those
// connections' sockets or state. Work arrives either as poller
// readiness or as a queued Message from another thread.
type ProtocolThread struct {
	Index int

	pollset poller.Pollset
	inbox   *queue.Queue[registry.Message]
	slots   *SlotPool
	log     *logrus.Entry

	timeout   time.Duration
	lastSweep time.Time
	stop      chan struct{}
	stopped   chan struct{}
}

// NewProtocolThread creates a thread with its own pollset and a bounded
// inbox of the given capacity.
func NewProtocolThread(index int, slots *SlotPool, inboxCapacity int, timeout time.Duration, log *logrus.Entry) (*ProtocolThread, error) {
	ps, err := poller.NewPoller()
	if err != nil {
		return nil, err
	}
	return &ProtocolThread{
		Index:   index,
		pollset: ps,
		inbox:   queue.New[registry.Message](inboxCapacity),
		slots:   slots,
		log:     log,
		timeout: timeout,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Post enqueues a message for this thread to process, returning false if
// the inbox is saturated — callers must retry or drop per their own
// backpressure policy.
func (t *ProtocolThread) Post(msg registry.Message) bool {
	return t.inbox.PushBack(msg)
}

// Pollset exposes the thread's pollset so connection setup (Add/Remove)
// can be driven from action handlers running on this thread.
func (t *ProtocolThread) Pollset() poller.Pollset {
	return t.pollset
}

// InboxDepth reports how many queued messages this thread has not yet
// drained, for stats reporting.
func (t *ProtocolThread) InboxDepth() int {
	return t.inbox.Size()
}

// InboxCapacity reports the bound on this thread's inbox.
func (t *ProtocolThread) InboxCapacity() int {
	return t.inbox.Capacity()
}

// Run executes the event loop until Stop is called. It must be run on
// its own goroutine; all reads/writes to connections owned by this
// thread happen here, satisfying the single-owner-thread discipline.
func (t *ProtocolThread) Run() {
	defer close(t.stopped)
	t.lastSweep = time.Now()
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		ready, err := t.pollset.Wait(waitTimeoutMS)
		if err != nil {
			t.log.WithError(err).Warn("pollset wait failed")
			continue
		}
		for _, r := range ready {
			t.dispatchReadiness(r)
		}

		t.drainInbox()

		if t.timeout > 0 && time.Since(t.lastSweep) >= time.Second {
			t.sweepTimeouts()
			t.lastSweep = time.Now()
		}
	}
}

func (t *ProtocolThread) dispatchReadiness(r poller.Readiness) {
	conn := t.slots.Get(r.Userdata)
	if conn == nil || conn.Protocol == nil {
		return
	}
	state := conn.Protocol.State.At(conn.State)
	if state.Run == nil {
		return
	}
	if err := state.Run(conn); err != nil {
		t.log.WithFields(logrus.Fields{
			"connection": conn.ID,
			"state":      state.Name,
		}).WithError(err).Debug("state handler returned error")
	}
}

func (t *ProtocolThread) drainInbox() {
	for {
		msg, ok := t.inbox.PopFront()
		if !ok {
			return
		}
		conn := t.slots.Get(msg.ConnectionID)
		if conn == nil || conn.Protocol == nil {
			continue
		}
		action := conn.Protocol.Action.At(msg.Action)
		if action.Run == nil {
			continue
		}
		if err := action.Run(conn); err != nil {
			t.log.WithFields(logrus.Fields{
				"connection": conn.ID,
				"action":     action.Name,
			}).WithError(err).Debug("action handler returned error")
		}
	}
}

func (t *ProtocolThread) sweepTimeouts() {
	now := time.Now()
	for i := 0; i < t.slots.Capacity(); i++ {
		conn := t.slots.Get(i)
		if conn == nil || conn.ThreadIdx != t.Index || conn.Sock == nil {
			continue
		}
		if now.Sub(conn.LastActive) > t.timeout {
			conn.CloseAfter = true
			if conn.Protocol != nil {
				if action, ok := conn.Protocol.Action.Lookup("timeout"); ok {
					_ = conn.Protocol.Action.At(action).Run(conn)
				}
			}
		}
	}
}

// Stop signals the event loop to exit and blocks until it has, honoring
// a caller-supplied deadline via ctx.
func (t *ProtocolThread) Stop(ctx context.Context) error {
	close(t.stop)
	select {
	case <-t.stopped:
		return t.pollset.Close()
	case <-ctx.Done():
		return ctx.Err()
	}
}
