package httpproto

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fast01/latypus/engine"
	"github.com/fast01/latypus/netio"
	"github.com/fast01/latypus/poller"
	"github.com/fast01/latypus/registry"
)

// Client-side state names, per SPEC_FULL.md's client state table.
const (
	ClientStateFree           = "free"
	ClientStateClientRequest  = "client_request"
	ClientStateClientBody     = "client_body"
	ClientStateServerResponse = "server_response"
	ClientStateServerBody     = "server_body"
	ClientStateWaiting        = "waiting"
)

const (
	ClientActionConnectHost             = "connect_host"
	ClientActionProcessNextRequest      = "process_next_request"
	ClientActionKeepaliveWaitConnection = "keepalive_wait_connection"
	ClientActionTimeout                 = "timeout"
)

var (
	errConnectFailed = errors.New("httpproto: connect_failed")
	errHandlerNil    = errors.New("httpproto: handler required")
)

// PendingRequest is one logical request queued against a client
// connection, grounded on http_client_request: a method/url/handler
// tuple submitted by the caller.
type PendingRequest struct {
	Method  string
	URL     string
	Host    string
	Handler ClientHandler
}

// clientConn is the per-connection state kept in a Connection's
// UserData field for the client protocol: the pending-request FIFO,
// the in-flight request/response, and the host this connection is
// pooled under.
type clientConn struct {
	mu      sync.Mutex
	pending *list.List // of *PendingRequest

	host    string
	inFlite *PendingRequest
	req     *Request
	resp    *Response
	version HTTPVersion
}

// hostEntry is one host's pool of connections, rotated round-robin on
// each submit to balance reuse across pooled connections, per
// get_existing_connection_for_url's "rotate the host list" policy.
type hostEntry struct {
	conns []int // connection slot ids
	next  int
}

// Client is an HTTP client engine: a registered protocol plus the
// host-keyed connection pool described in SPEC_FULL.md §4.8.
type Client struct {
	eng   *engine.Engine
	proto *registry.Protocol
	log   *logrus.Logger

	headerSz int
	ioSz     int

	maxRequestsPerConnection int

	hostMu  sync.Mutex
	hostMap map[string]*hostEntry

	stateFree           int
	stateClientRequest  int
	stateClientBody     int
	stateServerResponse int
	stateServerBody     int
	stateWaiting        int

	actionConnectHost        int
	actionProcessNextRequest int
	actionKeepaliveWait      int
	actionTimeout            int
}

// NewClient builds an HTTP client protocol and its Engine.
func NewClient(cfg engine.Config, maxRequestsPerConnection int, log *logrus.Logger) (*Client, error) {
	c := &Client{
		log:                      log,
		headerSz:                 cfg.HeaderBufferSize,
		ioSz:                     cfg.IOBufferSize,
		maxRequestsPerConnection: maxRequestsPerConnection,
		hostMap:                  make(map[string]*hostEntry),
	}
	c.proto = registry.NewProtocol("http_client")

	c.stateFree = c.proto.State.Register(ClientStateFree, registry.State{Name: ClientStateFree})
	c.stateClientRequest = c.proto.State.Register(ClientStateClientRequest, registry.State{
		Name: ClientStateClientRequest, Run: func(x any) error { return c.handleClientRequest(x) },
	})
	c.stateClientBody = c.proto.State.Register(ClientStateClientBody, registry.State{
		Name: ClientStateClientBody, Run: func(x any) error { return c.handleClientBody(x) },
	})
	c.stateServerResponse = c.proto.State.Register(ClientStateServerResponse, registry.State{
		Name: ClientStateServerResponse, Run: func(x any) error { return c.handleServerResponse(x) },
	})
	c.stateServerBody = c.proto.State.Register(ClientStateServerBody, registry.State{
		Name: ClientStateServerBody, Run: func(x any) error { return c.handleServerBody(x) },
	})
	c.stateWaiting = c.proto.State.Register(ClientStateWaiting, registry.State{
		Name: ClientStateWaiting, Run: func(x any) error { return c.handleWaiting(x) },
	})

	c.actionConnectHost = c.proto.Action.Register(ClientActionConnectHost, registry.Action{
		Name: ClientActionConnectHost, Run: func(x any) error { return c.connectHost(x) },
	})
	c.actionProcessNextRequest = c.proto.Action.Register(ClientActionProcessNextRequest, registry.Action{
		Name: ClientActionProcessNextRequest, Run: func(x any) error { return c.processNextRequest(x) },
	})
	c.actionKeepaliveWait = c.proto.Action.Register(ClientActionKeepaliveWaitConnection, registry.Action{
		Name: ClientActionKeepaliveWaitConnection, Run: func(x any) error { return nil },
	})
	c.actionTimeout = c.proto.Action.Register(ClientActionTimeout, registry.Action{
		Name: ClientActionTimeout, Run: func(x any) error { return c.handleTimeout(x) },
	})

	eng, err := engine.New(cfg, c.proto, log)
	if err != nil {
		return nil, err
	}
	c.eng = eng
	return c, nil
}

// Engine exposes the underlying engine.
func (c *Client) Engine() *engine.Engine { return c.eng }

// Submit finds or creates a pooled connection for req.Host and enqueues
// req against it, per SPEC_FULL.md §4.8's submission policy: reuse an
// under-capacity pooled connection when max_requests_per_connection
// permits it, otherwise open a fresh connection.
func (c *Client) Submit(req *PendingRequest) bool {
	if req.Handler == nil {
		return false
	}

	if c.maxRequestsPerConnection > 0 {
		if conn, ok := c.findExistingConnection(req.Host); ok {
			cc := conn.UserData.(*clientConn)
			cc.mu.Lock()
			wasEmpty := cc.pending.Len() == 0
			cc.pending.PushBack(req)
			cc.mu.Unlock()
			if wasEmpty {
				c.eng.Dispatch(conn.ThreadIdx, registry.Message{
					Action: c.actionProcessNextRequest, ConnectionID: conn.ID,
				})
			}
			return true
		}
	}

	conn, ok := c.eng.Slots().Acquire()
	if !ok {
		return false
	}
	cc := &clientConn{pending: list.New(), host: req.Host}
	cc.pending.PushBack(req)
	conn.UserData = cc
	conn.Protocol = c.proto
	conn.State = c.stateFree
	conn.ThreadIdx = c.eng.ChooseThread()

	c.hostMu.Lock()
	entry, ok := c.hostMap[req.Host]
	if !ok {
		entry = &hostEntry{}
		c.hostMap[req.Host] = entry
	}
	entry.conns = append(entry.conns, conn.ID)
	c.hostMu.Unlock()

	return c.eng.Dispatch(conn.ThreadIdx, registry.Message{
		Action: c.actionConnectHost, ConnectionID: conn.ID,
	})
}

// findExistingConnection scans host_map[host] for a pooled connection
// whose queue length is under max_requests_per_connection, rotating the
// host's connection list on each call to balance reuse.
func (c *Client) findExistingConnection(host string) (*engine.Connection, bool) {
	c.hostMu.Lock()
	defer c.hostMu.Unlock()

	entry, ok := c.hostMap[host]
	if !ok || len(entry.conns) == 0 {
		return nil, false
	}
	n := len(entry.conns)
	for i := 0; i < n; i++ {
		idx := (entry.next + i) % n
		connID := entry.conns[idx]
		conn := c.eng.Slots().Get(connID)
		if conn == nil || conn.Sock == nil {
			continue
		}
		cc, ok := conn.UserData.(*clientConn)
		if !ok {
			continue
		}
		cc.mu.Lock()
		length := cc.pending.Len()
		cc.mu.Unlock()
		if length < c.maxRequestsPerConnection {
			entry.next = (idx + 1) % n
			return conn, true
		}
	}
	return nil, false
}

// connectHost resolves and initiates a non-blocking connect for a
// freshly-acquired connection slot's first queued request.
func (c *Client) connectHost(connAny any) error {
	conn := connAny.(*engine.Connection)
	cc := conn.UserData.(*clientConn)

	sock, err := netio.Dial(cc.host)
	if err != nil {
		c.failAllPending(conn, cc, errConnectFailed)
		c.releaseConnection(conn)
		return err
	}
	conn.Sock = sock
	conn.LastActive = time.Now()

	thread := c.eng.Threads()[conn.ThreadIdx]
	if err := thread.Pollset().Add(sock.FD(), conn.ID, poller.Writable); err != nil {
		c.failAllPending(conn, cc, err)
		c.releaseConnection(conn)
		return err
	}
	conn.State = c.stateClientRequest
	return nil
}

// processNextRequest handles a process_next_request message: it starts
// the head of a pooled connection's queue when the connection is waiting.
func (c *Client) processNextRequest(connAny any) error {
	conn := connAny.(*engine.Connection)
	if conn.State == c.stateWaiting {
		conn.State = c.stateClientRequest
		return c.handleClientRequest(conn)
	}
	return nil
}

func (c *Client) beginNextRequest(conn *engine.Connection, cc *clientConn) {
	cc.mu.Lock()
	front := cc.pending.Front()
	if front == nil {
		cc.mu.Unlock()
		conn.State = c.stateWaiting
		return
	}
	cc.inFlite = front.Value.(*PendingRequest)
	cc.mu.Unlock()

	cc.req = AcquireRequest()
	cc.req.Method = cc.inFlite.Method
	cc.req.Path = cc.inFlite.URL
	cc.req.Proto = "HTTP/1.1"
	cc.req.Host = cc.inFlite.Host
	cc.inFlite.Handler.PopulateRequest(cc.req)

	conn.WriteBuf = conn.WriteBuf[:0]
	conn.WriteBuf = appendRequestLine(conn.WriteBuf, cc.req.Method, cc.req.Path, cc.req.Proto)
	conn.WriteBuf = appendHeader(conn.WriteBuf, "Host", cc.req.Host)
	conn.WriteBuf = appendHeader(conn.WriteBuf, "User-Agent", "latypus/0.0.0")
	if cc.req.ContentType != "" {
		conn.WriteBuf = appendHeader(conn.WriteBuf, "Content-Type", cc.req.ContentType)
	}
	conn.WriteBuf = append(conn.WriteBuf, '\r', '\n')
	conn.State = c.stateClientRequest
}

func (c *Client) handleClientRequest(connAny any) error {
	conn := connAny.(*engine.Connection)
	cc := conn.UserData.(*clientConn)

	if cc.inFlite == nil {
		c.beginNextRequest(conn, cc)
		if conn.State == c.stateWaiting {
			return nil
		}
	}

	if len(conn.WriteBuf) > 0 {
		res := conn.Sock.Write(conn.WriteBuf)
		if res.Status == netio.StatusWouldBlock {
			return nil
		}
		if res.Status == netio.StatusError {
			c.abortInFlight(conn, cc, res.Err)
			return res.Err
		}
		conn.WriteBuf = conn.WriteBuf[res.N:]
		if len(conn.WriteBuf) > 0 {
			return nil
		}
	}
	conn.State = c.stateServerResponse
	return nil
}

func (c *Client) handleClientBody(connAny any) error {
	conn := connAny.(*engine.Connection)
	cc := conn.UserData.(*clientConn)

	buf := make([]byte, c.ioSz)
	n, err := cc.inFlite.Handler.WriteRequestBody(buf)
	if err != nil {
		c.abortInFlight(conn, cc, err)
		return err
	}
	if n == 0 {
		conn.State = c.stateServerResponse
		return nil
	}
	res := conn.Sock.Write(buf[:n])
	if res.Status == netio.StatusError {
		c.abortInFlight(conn, cc, res.Err)
		return res.Err
	}
	return nil
}

func (c *Client) handleServerResponse(connAny any) error {
	conn := connAny.(*engine.Connection)
	cc := conn.UserData.(*clientConn)

	buf := make([]byte, c.ioSz)
	res := conn.Sock.Read(buf)
	switch res.Status {
	case netio.StatusWouldBlock:
		return nil
	case netio.StatusEOF, netio.StatusError:
		c.abortInFlight(conn, cc, res.Err)
		return res.Err
	}
	conn.ReadBuf = append(conn.ReadBuf, buf[:res.N]...)

	consumed, resp, ok, err := ParseResponse(conn.ReadBuf, c.headerSz)
	if err != nil {
		c.abortInFlight(conn, cc, err)
		return err
	}
	if !ok {
		return nil
	}
	conn.ReadBuf = conn.ReadBuf[consumed:]
	cc.resp = resp

	if resp.ContentLength > 0 {
		conn.State = c.stateServerBody
		return nil
	}
	return c.completeInFlight(conn, cc)
}

func (c *Client) handleServerBody(connAny any) error {
	conn := connAny.(*engine.Connection)
	cc := conn.UserData.(*clientConn)
	if err := cc.inFlite.Handler.ReadResponseBody(cc.resp.Body); err != nil {
		c.abortInFlight(conn, cc, err)
		return err
	}
	return c.completeInFlight(conn, cc)
}

func (c *Client) completeInFlight(conn *engine.Connection, cc *clientConn) error {
	req := cc.inFlite
	resp := cc.resp
	if err := req.Handler.HandleResponse(resp); err != nil {
		req.Handler.EndRequest(err)
	} else {
		req.Handler.EndRequest(nil)
	}

	cc.mu.Lock()
	if front := cc.pending.Front(); front != nil {
		cc.pending.Remove(front)
	}
	more := cc.pending.Len() > 0
	cc.mu.Unlock()

	ReleaseRequest(cc.req)
	cc.req = nil
	ReleaseResponse(resp)
	cc.resp = nil
	cc.inFlite = nil

	if more {
		conn.State = c.stateClientRequest
		return nil
	}
	// current policy: close after the queue drains; a connection is never
	// parked in waiting here.
	c.releaseConnection(conn)
	return nil
}

func (c *Client) handleWaiting(connAny any) error {
	conn := connAny.(*engine.Connection)
	buf := make([]byte, c.ioSz)
	res := conn.Sock.Read(buf)
	if res.Status == netio.StatusWouldBlock {
		return nil
	}
	c.releaseConnection(conn)
	return nil
}

func (c *Client) abortInFlight(conn *engine.Connection, cc *clientConn, err error) {
	if cc.inFlite != nil {
		cc.inFlite.Handler.EndRequest(err)
	}
	c.failAllPending(conn, cc, err)
	c.releaseConnection(conn)
}

func (c *Client) failAllPending(conn *engine.Connection, cc *clientConn, err error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	for e := cc.pending.Front(); e != nil; e = e.Next() {
		req := e.Value.(*PendingRequest)
		if req != cc.inFlite {
			req.Handler.EndRequest(err)
		}
	}
	cc.pending.Init()
}

func (c *Client) handleTimeout(connAny any) error {
	conn := connAny.(*engine.Connection)
	cc := conn.UserData.(*clientConn)
	c.abortInFlight(conn, cc, errConnectFailed)
	return nil
}

func (c *Client) releaseConnection(conn *engine.Connection) {
	cc, _ := conn.UserData.(*clientConn)
	if cc != nil {
		c.hostMu.Lock()
		if entry, ok := c.hostMap[cc.host]; ok {
			for i, id := range entry.conns {
				if id == conn.ID {
					entry.conns = append(entry.conns[:i], entry.conns[i+1:]...)
					break
				}
			}
		}
		c.hostMu.Unlock()
	}
	if conn.Sock != nil {
		thread := c.eng.Threads()[conn.ThreadIdx]
		_ = thread.Pollset().Remove(conn.Sock.FD())
		_ = conn.Sock.Close()
	}
	c.eng.Slots().Release(conn)
}
