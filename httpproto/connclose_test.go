package httpproto

import "testing"

func TestConnectionClosePolicy(t *testing.T) {
	cases := []struct {
		version    HTTPVersion
		connection string
		want       bool
	}{
		{HTTPVersion10, "", true},
		{HTTPVersion10, "keep-alive", false},
		{HTTPVersion10, "Keep-Alive", false},
		{HTTPVersion10, "close", true},
		{HTTPVersion11, "", false},
		{HTTPVersion11, "close", true},
		{HTTPVersion11, "Close", true},
		{HTTPVersion11, "keep-alive", false},
		{HTTPVersionUnknown, "keep-alive", true},
	}
	for _, c := range cases {
		got := ConnectionClose(c.version, c.connection)
		if got != c.want {
			t.Errorf("ConnectionClose(%v, %q) = %v, want %v", c.version, c.connection, got, c.want)
		}
	}
}

func TestParseHTTPVersion(t *testing.T) {
	if ParseHTTPVersion("HTTP/1.0") != HTTPVersion10 {
		t.Fatal("expected HTTP/1.0 to parse as HTTPVersion10")
	}
	if ParseHTTPVersion("HTTP/1.1") != HTTPVersion11 {
		t.Fatal("expected HTTP/1.1 to parse as HTTPVersion11")
	}
	if ParseHTTPVersion("HTTP/2.0") != HTTPVersionUnknown {
		t.Fatal("expected HTTP/2.0 to parse as unknown")
	}
}

func TestResponseConnectionToken(t *testing.T) {
	if v, present := ResponseConnectionToken(HTTPVersion10, false, true); !present || v != "keep-alive" {
		t.Fatalf("got (%q,%v)", v, present)
	}
	if _, present := ResponseConnectionToken(HTTPVersion10, false, false); present {
		t.Fatal("HTTP/1.0 without keep-alive request should omit the header")
	}
	if v, present := ResponseConnectionToken(HTTPVersion11, true, false); !present || v != "close" {
		t.Fatalf("got (%q,%v)", v, present)
	}
	if v, present := ResponseConnectionToken(HTTPVersion11, false, false); !present || v != "keep-alive" {
		t.Fatalf("got (%q,%v)", v, present)
	}
}
