package httpproto

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fast01/latypus/engine"
	"github.com/fast01/latypus/netio"
	"github.com/fast01/latypus/poller"
	"github.com/fast01/latypus/registry"
	"github.com/fast01/latypus/router"
)

// errTooManyConnections is returned from Accept when the slot pool has
// reached server_connections capacity.
var errTooManyConnections = errors.New("httpproto: connection slot pool saturated")

// Server-side state names, per SPEC_FULL.md's state table: free →
// server_request → server_body → client_response → client_body →
// waiting. The response-writing states keep the original engine's
// "client_*" naming even on the server side, since that naming comes
// from the shared connection_close/populate_response code path.
const (
	StateFree           = "free"
	StateServerRequest  = "server_request"
	StateServerBody     = "server_body"
	StateClientResponse = "client_response"
	StateClientBody     = "client_body"
	StateWaiting        = "waiting"
)

const (
	ActionAccept  = "accept"
	ActionTimeout = "timeout"
)

// serverConn is the per-connection state a Server keeps in a
// Connection's UserData field.
type serverConn struct {
	req     *Request
	resp    *Response
	handler ServerHandler
	version HTTPVersion
	closing bool
}

// Server is an HTTP server engine: a registered protocol driving
// package engine's thread pool, plus the router mapping request paths
// to handlers.
type Server struct {
	eng    *engine.Engine
	proto  *registry.Protocol
	router *router.Router[ServerHandlerFactory]
	log    *logrus.Logger

	headerSz int
	ioSz     int

	stateFree           int
	stateServerRequest  int
	stateServerBody     int
	stateClientResponse int
	stateClientBody     int
	stateWaiting        int
	actionAccept        int
	actionTimeout       int
}

// NewServer builds an HTTP server protocol and its Engine, wired to r.
func NewServer(cfg engine.Config, r *router.Router[ServerHandlerFactory], log *logrus.Logger) (*Server, error) {
	s := &Server{
		router:   r,
		log:      log,
		headerSz: cfg.HeaderBufferSize,
		ioSz:     cfg.IOBufferSize,
	}
	s.proto = registry.NewProtocol("http_server")

	s.stateFree = s.proto.State.Register(StateFree, registry.State{Name: StateFree})
	s.stateServerRequest = s.proto.State.Register(StateServerRequest, registry.State{
		Name: StateServerRequest, Run: func(c any) error { return s.handleServerRequest(c) },
	})
	s.stateServerBody = s.proto.State.Register(StateServerBody, registry.State{
		Name: StateServerBody, Run: func(c any) error { return s.handleServerBody(c) },
	})
	s.stateClientResponse = s.proto.State.Register(StateClientResponse, registry.State{
		Name: StateClientResponse, Run: func(c any) error { return s.handleClientResponse(c) },
	})
	s.stateClientBody = s.proto.State.Register(StateClientBody, registry.State{
		Name: StateClientBody, Run: func(c any) error { return s.handleClientBody(c) },
	})
	s.stateWaiting = s.proto.State.Register(StateWaiting, registry.State{
		Name: StateWaiting, Run: func(c any) error { return s.handleWaiting(c) },
	})
	s.actionAccept = s.proto.Action.Register(ActionAccept, registry.Action{
		Name: ActionAccept, Run: func(c any) error { return nil },
	})
	s.actionTimeout = s.proto.Action.Register(ActionTimeout, registry.Action{
		Name: ActionTimeout, Run: func(c any) error { return s.handleTimeout(c) },
	})

	eng, err := engine.New(cfg, s.proto, log)
	if err != nil {
		return nil, err
	}
	s.eng = eng
	return s, nil
}

// Engine exposes the underlying engine, for Start/Shutdown and stats.
func (s *Server) Engine() *engine.Engine { return s.eng }

// Listen opens addr and begins an accept loop spread round-robin across
// the engine's processor threads. Each accepted connection is handed a
// slot and added to its owning thread's pollset with readable interest,
// matching the "thread ownership handed off on accept" policy.
func (s *Server) Listen(addr string) error {
	ln, _, err := s.eng.Listen(addr)
	if err != nil {
		return err
	}
	go s.acceptLoop(ln)
	return nil
}

// acceptLoop repeatedly accepts connections from ln, round-robining
// each one onto a processor thread. A would-block result just retries;
// a hard error ends the loop, which happens when Engine.Shutdown closes
// the listener.
func (s *Server) acceptLoop(ln *net.TCPListener) {
	threadIdx := 0
	for {
		sock, res := netio.Accept(ln)
		switch res.Status {
		case netio.StatusWouldBlock:
			time.Sleep(time.Millisecond)
			continue
		case netio.StatusOK:
		default:
			return
		}
		if _, err := s.Accept(sock, threadIdx); err != nil {
			s.log.WithError(err).Warn("accept: could not claim connection slot")
			_ = sock.Close()
		}
		threadIdx = (threadIdx + 1) % len(s.eng.Threads())
	}
}

func (s *Server) abort(c *engine.Connection) {
	s.close(c)
}

func (s *Server) close(c *engine.Connection) {
	thread := s.eng.Threads()[c.ThreadIdx]
	if c.Sock != nil {
		_ = thread.Pollset().Remove(c.Sock.FD())
		_ = c.Sock.Close()
	}
	if sc, ok := c.UserData.(*serverConn); ok {
		if sc.req != nil {
			ReleaseRequest(sc.req)
		}
		if sc.resp != nil {
			ReleaseResponse(sc.resp)
		}
	}
	s.eng.Slots().Release(c)
}

// Accept claims a fresh slot for an already-accepted socket, assigns it
// to threadIdx, and starts it in server_request.
func (s *Server) Accept(sock *netio.Socket, threadIdx int) (*engine.Connection, error) {
	c, ok := s.eng.Slots().Acquire()
	if !ok {
		return nil, errTooManyConnections
	}
	c.Sock = sock
	c.Protocol = s.proto
	c.ThreadIdx = threadIdx
	c.LastActive = time.Now()
	c.State = s.stateServerRequest
	c.UserData = &serverConn{req: AcquireRequest()}

	thread := s.eng.Threads()[threadIdx]
	if err := thread.Pollset().Add(sock.FD(), c.ID, poller.Readable); err != nil {
		s.eng.Slots().Release(c)
		return nil, err
	}
	return c, nil
}

func (s *Server) handleServerRequest(connAny any) error {
	c := connAny.(*engine.Connection)
	sc := c.UserData.(*serverConn)

	buf := make([]byte, s.ioSz)
	res := c.Sock.Read(buf)
	switch res.Status {
	case netio.StatusWouldBlock:
		return nil
	case netio.StatusEOF, netio.StatusError:
		s.abort(c)
		return res.Err
	}
	c.ReadBuf = append(c.ReadBuf, buf[:res.N]...)

	consumed, req, ok, err := ParseRequest(c.ReadBuf, s.headerSz)
	if err != nil {
		s.abort(c)
		return err
	}
	if !ok {
		return nil
	}
	c.ReadBuf = c.ReadBuf[consumed:]
	if sc.req != nil {
		ReleaseRequest(sc.req)
	}
	sc.req = req
	sc.version = ParseHTTPVersion(req.Proto)

	if sc.version == HTTPVersion11 && (req.Host == "" || !ValidHost(req.Host)) {
		s.log.WithError(ErrMissingHost).Debug("rejecting request")
		sc.handler = NewHandlerFunc(func(req *Request) (int, string, []byte, error) {
			return 400, "text/plain", []byte("missing or invalid Host header"), nil
		})()
		sc.handler.Init()
		status, _ := sc.handler.HandleRequest(req)
		s.populateResponse(c, sc, status)
		sc.closing = true // force-close: the connection can't be trusted to keep framing straight
		c.State = s.stateClientResponse
		return nil
	}

	_, factory, found := s.router.Lookup(req.Path)
	if !found {
		factory = NewHandlerFunc(func(req *Request) (int, string, []byte, error) {
			return 404, "text/plain", []byte("not found"), nil
		})
	}
	sc.handler = factory()
	sc.handler.Init()

	status, herr := sc.handler.HandleRequest(req)
	if herr != nil {
		s.abort(c)
		return herr
	}
	s.populateResponse(c, sc, status)
	c.State = s.stateClientResponse
	return nil
}

// handleServerBody exists for completeness of the state table. No code
// path enters server_body: ParseRequest buffers a request body in full,
// and handleServerRequest moves straight to client_response.
func (s *Server) handleServerBody(connAny any) error {
	c := connAny.(*engine.Connection)
	sc := c.UserData.(*serverConn)
	s.populateResponse(c, sc, 200)
	c.State = s.stateClientResponse
	return nil
}

func (s *Server) populateResponse(c *engine.Connection, sc *serverConn, status int) {
	connectionClose := ConnectionClose(sc.version, sc.req.Connection)
	sc.closing = connectionClose

	resp := AcquireResponse()
	resp.StatusCode = status
	resp.Reason = StatusText(status)
	sc.handler.PopulateResponse(sc.req, resp, connectionClose)
	sc.resp = resp

	c.WriteBuf = c.WriteBuf[:0]
	c.WriteBuf = appendStatusLine(c.WriteBuf, sc.version, status, resp.Reason)
	c.WriteBuf = appendHeader(c.WriteBuf, "Date", CurrentDate())
	if resp.ContentType != "" {
		c.WriteBuf = appendHeader(c.WriteBuf, "Content-Type", resp.ContentType)
	}
	if status != 304 {
		c.WriteBuf = appendHeaderInt(c.WriteBuf, "Content-Length", resp.ContentLength)
	}
	connToken, present := ResponseConnectionToken(sc.version, connectionClose, tokenEquals(sc.req.Connection, "keep-alive"))
	if present {
		c.WriteBuf = appendHeader(c.WriteBuf, "Connection", connToken)
	}
	for k, v := range resp.Headers {
		c.WriteBuf = appendHeader(c.WriteBuf, k, v)
	}
	c.WriteBuf = append(c.WriteBuf, '\r', '\n')
}

func (s *Server) handleClientResponse(connAny any) error {
	c := connAny.(*engine.Connection)
	sc := c.UserData.(*serverConn)

	if len(c.WriteBuf) > 0 {
		res := c.Sock.Write(c.WriteBuf)
		if res.Status == netio.StatusWouldBlock {
			return nil
		}
		if res.Status == netio.StatusError {
			s.abort(c)
			return res.Err
		}
		c.WriteBuf = c.WriteBuf[res.N:]
		if len(c.WriteBuf) > 0 {
			return nil
		}
	}

	if sc.resp.ContentLength > 0 {
		c.State = s.stateClientBody
		return nil
	}
	s.finishRequest(c, sc)
	return nil
}

func (s *Server) handleClientBody(connAny any) error {
	c := connAny.(*engine.Connection)
	sc := c.UserData.(*serverConn)

	buf := make([]byte, s.ioSz)
	n, err := sc.handler.WriteResponseBody(buf)
	if err != nil {
		s.abort(c)
		return err
	}
	if n == 0 {
		s.finishRequest(c, sc)
		return nil
	}
	res := c.Sock.Write(buf[:n])
	if res.Status == netio.StatusError {
		s.abort(c)
		return res.Err
	}
	return nil
}

func (s *Server) finishRequest(c *engine.Connection, sc *serverConn) {
	ReleaseResponse(sc.resp)
	sc.resp = nil
	if sc.closing {
		s.close(c)
		return
	}
	c.State = s.stateWaiting
}

func (s *Server) handleWaiting(connAny any) error {
	c := connAny.(*engine.Connection)
	buf := make([]byte, s.ioSz)
	res := c.Sock.Read(buf)
	switch res.Status {
	case netio.StatusWouldBlock:
		return nil
	case netio.StatusEOF, netio.StatusError:
		s.close(c)
		return nil
	}
	c.ReadBuf = append(c.ReadBuf, buf[:res.N]...)
	sc := c.UserData.(*serverConn)
	if sc.req == nil {
		sc.req = AcquireRequest()
	}
	c.State = s.stateServerRequest
	return s.handleServerRequest(c)
}

func (s *Server) handleTimeout(connAny any) error {
	c := connAny.(*engine.Connection)
	s.abort(c)
	return nil
}
