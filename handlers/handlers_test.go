package handlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fast01/latypus/httpproto"
)

func TestEchoHandler(t *testing.T) {
	factory := NewEcho()
	h := factory()
	h.Init()

	req := httpproto.AcquireRequest()
	req.Method = "GET"
	req.Target = "/echo?msg=hello"
	req.Path = "/echo"
	req.Proto = "HTTP/1.1"
	req.Host = "example.com"
	defer httpproto.ReleaseRequest(req)

	status, err := h.HandleRequest(req)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if status != 200 {
		t.Fatalf("status = %d, want 200", status)
	}

	resp := httpproto.AcquireResponse()
	defer httpproto.ReleaseResponse(resp)
	h.PopulateResponse(req, resp, false)
	const wantBody = "echo /echo?msg=hello"
	if resp.ContentType != "text/plain" {
		t.Fatalf("ContentType = %q, want text/plain", resp.ContentType)
	}
	if resp.ContentLength != len(wantBody) {
		t.Fatalf("ContentLength = %d, want %d", resp.ContentLength, len(wantBody))
	}

	buf := make([]byte, resp.ContentLength)
	n, err := h.WriteResponseBody(buf)
	if err != nil {
		t.Fatalf("WriteResponseBody: %v", err)
	}
	if string(buf[:n]) != wantBody {
		t.Fatalf("body = %q, want %q", buf[:n], wantBody)
	}
}

func TestStaticFileResolvesAndRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	factory := NewStaticFile(dir, "/static")
	h := factory()
	h.Init()

	sf := h.(*StaticFile)
	path, err := sf.resolve("/static/hello.txt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if filepath.Base(path) != "hello.txt" {
		t.Fatalf("resolve() = %q", path)
	}

	if _, err := sf.resolve("/static/../../etc/passwd"); err != errOutsideRoot {
		t.Fatalf("expected errOutsideRoot, got %v", err)
	}
}

func TestStaticFileServesContent(t *testing.T) {
	dir := t.TempDir()
	content := []byte("the quick brown fox")
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), content, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	factory := NewStaticFile(dir, "/static")
	h := factory()
	h.Init()

	req := httpproto.AcquireRequest()
	req.Path = "/static/f.txt"
	defer httpproto.ReleaseRequest(req)

	status, err := h.HandleRequest(req)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if status != 200 {
		t.Fatalf("status = %d, want 200", status)
	}

	resp := httpproto.AcquireResponse()
	defer httpproto.ReleaseResponse(resp)
	h.PopulateResponse(req, resp, false)
	if resp.ContentLength != len(content) {
		t.Fatalf("ContentLength = %d, want %d", resp.ContentLength, len(content))
	}

	var got []byte
	buf := make([]byte, 4)
	for {
		n, err := h.WriteResponseBody(buf)
		if err != nil {
			t.Fatalf("WriteResponseBody: %v", err)
		}
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != string(content) {
		t.Fatalf("got %q, want %q", got, content)
	}
}
