package netio

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Listen opens a non-blocking TCP listener bound to addr.
func Listen(addr string) (*net.TCPListener, int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, 0, err
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, 0, err
	}
	rawConn, err := ln.SyscallConn()
	if err != nil {
		ln.Close()
		return nil, 0, err
	}
	var fd int
	if ctrlErr := rawConn.Control(func(fdv uintptr) { fd = int(fdv) }); ctrlErr != nil {
		ln.Close()
		return nil, 0, ctrlErr
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		ln.Close()
		return nil, 0, err
	}
	return ln, fd, nil
}

// Accept accepts the next connection on ln. AcceptTCP parks the calling
// goroutine until a connection arrives; a timeout error (from a deadline
// set on ln) is reported as (nil, StatusWouldBlock).
func Accept(ln *net.TCPListener) (*Socket, Result) {
	conn, err := ln.AcceptTCP()
	if err != nil {
		status, kind := classifyNetError(err)
		return nil, Result{Status: status, Kind: kind, Err: err}
	}
	sock, err := NewFromConn(conn)
	if err != nil {
		conn.Close()
		return nil, Result{Status: StatusError, Kind: ErrorIO, Err: err}
	}
	return sock, Result{Status: StatusOK}
}

// Dial starts a non-blocking TCP connect to addr. The returned Socket may
// not yet be connected; callers must poll for Writable and check
// ConnectError to learn the outcome, mirroring how the original engine's
// connect_connection defers completion to the next pollset wakeup.
func Dial(addr string) (*Socket, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	copy(sa.Addr[:], tcpAddr.IP.To4())
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, err
	}
	osFile := os.NewFile(uintptr(fd), fmt.Sprintf("tcp:%s", addr))
	file, fileErr := net.FileConn(osFile)
	// net.FileConn dups the descriptor; the original fd owned by this
	// *os.File must be closed here or it leaks. tcpConn owns the dup,
	// which is the fd read back below.
	osFile.Close()
	if fileErr != nil {
		return nil, fileErr
	}
	tcpConn, ok := file.(*net.TCPConn)
	if !ok {
		file.Close()
		return nil, unix.EINVAL
	}

	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		tcpConn.Close()
		return nil, err
	}
	var dupFd int
	if ctrlErr := rawConn.Control(func(fdv uintptr) { dupFd = int(fdv) }); ctrlErr != nil {
		tcpConn.Close()
		return nil, ctrlErr
	}
	_ = unix.SetsockoptInt(dupFd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return &Socket{
		id:   nextID.Add(1),
		fd:   dupFd,
		file: tcpConn,
		peer: tcpAddr,
	}, nil
}

// ConnectError checks whether an in-progress non-blocking connect has
// completed, returning the pending socket error (nil on success).
func ConnectError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}
