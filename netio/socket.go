// Package netio wraps a non-blocking TCP socket, with an optional TLS
// overlay, behind one small surface per SPEC_FULL.md §4.3. The handshake
// (for TLS) and connect-in-progress (for plain TCP) are transparent to
// callers: Read/Write return a Status that tells the caller whether to
// re-arm poller interest and in which direction.
package netio

import (
	"crypto/tls"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Status is the outcome of a non-blocking Read/Write/Connect call.
type Status int

const (
	StatusOK Status = iota
	StatusWouldBlock
	StatusEOF
	StatusError
)

// ErrorKind classifies a non-transient I/O failure, per SPEC_FULL.md §7.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorConnect
	ErrorTLSHandshake
	ErrorTLSIO
	ErrorIO
)

// Result is the return value of a Read or Write call.
type Result struct {
	N      int
	Status Status
	Kind   ErrorKind
	Err    error
}

var nextID atomic.Uint64

// Socket is a non-blocking TCP connection, optionally TLS-wrapped. The
// fd exposed by FD() is what callers register with a poller.Pollset.
type Socket struct {
	id         uint64
	fd         int
	file       *net.TCPConn
	tls        *tls.Conn
	tlsWantsRW Event
	peer       net.Addr
	local      net.Addr
	lastActive time.Time
}

// Event mirrors poller.Event's readable/writable bits without importing
// the poller package, keeping netio usable independent of the engine's
// chosen multiplexer.
type Event uint8

const (
	EventReadable Event = 1 << iota
	EventWritable
)

// NewFromConn wraps an already-connected *net.TCPConn (e.g. returned by
// Accept) as a non-blocking Socket.
func NewFromConn(conn *net.TCPConn) (*Socket, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}
	var fd int
	ctrlErr := rawConn.Control(func(fdv uintptr) {
		fd = int(fdv)
	})
	if ctrlErr != nil {
		return nil, ctrlErr
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, err
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)

	s := &Socket{
		id:         nextID.Add(1),
		fd:         fd,
		file:       conn,
		peer:       conn.RemoteAddr(),
		local:      conn.LocalAddr(),
		lastActive: time.Now(),
	}
	return s, nil
}

// WrapServerTLS layers a server-side TLS handshake on top of an already
// non-blocking Socket. The handshake itself proceeds lazily on first
// Read/Write, so this call never blocks.
func (s *Socket) WrapServerTLS(cfg *tls.Config) {
	s.tls = tls.Server(s.file, cfg)
}

// WrapClientTLS layers a client-side TLS handshake (with the given CA
// verification config) on top of an already non-blocking Socket.
func (s *Socket) WrapClientTLS(cfg *tls.Config) {
	s.tls = tls.Client(s.file, cfg)
}

// ID returns a stable identifier for the socket, unique for the process
// lifetime, not reused across connections.
func (s *Socket) ID() uint64 { return s.id }

// FD returns the underlying file descriptor for poller registration.
func (s *Socket) FD() int { return s.fd }

// LocalAddr returns the local endpoint address.
func (s *Socket) LocalAddr() net.Addr { return s.local }

// PeerAddr returns the remote endpoint address.
func (s *Socket) PeerAddr() net.Addr { return s.peer }

// LastActivity returns the timestamp of the most recent successful I/O.
func (s *Socket) LastActivity() time.Time { return s.lastActive }

// Touch updates LastActivity to now; Read and Write call it after every
// successful transfer.
func (s *Socket) Touch() { s.lastActive = time.Now() }

func classifyNetError(err error) (Status, ErrorKind) {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return StatusWouldBlock, ErrorNone
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusWouldBlock, ErrorNone
	}
	return StatusError, ErrorIO
}

// Read performs one non-blocking read. For a TLS socket, a would-block
// result also reports which direction (read or write) the handshake or
// record layer is waiting on, via WantsTLS.
func (s *Socket) Read(buf []byte) Result {
	if s.tls != nil {
		return s.readTLS(buf)
	}
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		status, kind := classifyNetError(err)
		return Result{Status: status, Kind: kind, Err: err}
	}
	if n == 0 {
		return Result{Status: StatusEOF}
	}
	s.Touch()
	return Result{N: n, Status: StatusOK}
}

// Write performs one non-blocking write.
func (s *Socket) Write(buf []byte) Result {
	if s.tls != nil {
		return s.writeTLS(buf)
	}
	n, err := unix.Write(s.fd, buf)
	if err != nil {
		status, kind := classifyNetError(err)
		return Result{Status: status, Kind: kind, Err: err}
	}
	s.Touch()
	return Result{N: n, Status: StatusOK}
}

func (s *Socket) readTLS(buf []byte) Result {
	n, err := s.tls.Read(buf)
	if err != nil {
		if err.Error() == "EOF" {
			return Result{Status: StatusEOF}
		}
		status, _ := classifyNetError(err)
		if status == StatusWouldBlock {
			s.tlsWantsRW = EventReadable
			return Result{Status: StatusWouldBlock}
		}
		return Result{Status: StatusError, Kind: ErrorTLSIO, Err: err}
	}
	s.Touch()
	return Result{N: n, Status: StatusOK}
}

func (s *Socket) writeTLS(buf []byte) Result {
	n, err := s.tls.Write(buf)
	if err != nil {
		status, _ := classifyNetError(err)
		if status == StatusWouldBlock {
			s.tlsWantsRW = EventWritable
			return Result{Status: StatusWouldBlock}
		}
		return Result{Status: StatusError, Kind: ErrorTLSIO, Err: err}
	}
	s.Touch()
	return Result{N: n, Status: StatusOK}
}

// WantsTLS reports the poller-interest direction the TLS layer last
// reported needing, per SPEC_FULL.md's note that readable alone does not
// suffice for a non-blocking TLS stream: the record layer may need to
// write (e.g. to finish a renegotiation or send an alert) while the
// caller only asked to read, or vice versa.
func (s *Socket) WantsTLS() (Event, bool) {
	return s.tlsWantsRW, s.tls != nil
}

// Close closes the underlying connection.
func (s *Socket) Close() error {
	if s.tls != nil {
		_ = s.tls.Close()
	}
	return s.file.Close()
}
