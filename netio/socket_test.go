package netio

import (
	"net"
	"testing"
)

func TestNewFromConnAndEcho(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverDone <- err
			return
		}
		buf := make([]byte, 5)
		if _, err := conn.Read(buf); err != nil {
			serverDone <- err
			return
		}
		if _, err := conn.Write(buf); err != nil {
			serverDone <- err
			return
		}
		conn.Close()
		serverDone <- nil
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	tcpConn := conn.(*net.TCPConn)

	sock, err := NewFromConn(tcpConn)
	if err != nil {
		t.Fatalf("NewFromConn: %v", err)
	}
	defer sock.Close()

	if sock.FD() <= 0 {
		t.Fatalf("expected positive fd, got %d", sock.FD())
	}
	if sock.ID() == 0 {
		t.Fatal("expected nonzero socket id")
	}

	res := sock.Write([]byte("hello"))
	for res.Status == StatusWouldBlock {
		res = sock.Write([]byte("hello"))
	}
	if res.Status != StatusOK {
		t.Fatalf("write: %+v", res)
	}

	buf := make([]byte, 5)
	var n int
	for n < 5 {
		r := sock.Read(buf[n:])
		if r.Status == StatusWouldBlock {
			continue
		}
		if r.Status != StatusOK {
			t.Fatalf("read: %+v", r)
		}
		n += r.N
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q, want %q", buf, "hello")
	}

	if err := <-serverDone; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestListenAndDial(t *testing.T) {
	ln, fd, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	if fd <= 0 {
		t.Fatalf("expected positive listener fd, got %d", fd)
	}

	accepted := make(chan *Socket, 1)
	go func() {
		sock, res := Accept(ln)
		for res.Status == StatusWouldBlock {
			sock, res = Accept(ln)
		}
		if res.Status != StatusOK {
			accepted <- nil
			return
		}
		accepted <- sock
	}()

	client, err := Dial(ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	sock := <-accepted
	if sock == nil {
		t.Fatal("accept failed")
	}
	defer sock.Close()
}
