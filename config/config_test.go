package config

import (
	"testing"
	"time"
)

const sampleConfig = `
io_buffer_size 16384;
header_buffer_size 8192;
connection_timeout 30s;
keepalive_timeout 10s;
server_connections 2048;
client_connections 512;

tls_cert_file /etc/latypus/cert.pem;
tls_key_file /etc/latypus/key.pem;

listen {
    addr 0.0.0.0;
    port 8080;
    proto_kind http_server;
}

listen {
    addr 0.0.0.0;
    port 8443;
    proto_kind http_server;
    tls on;
}

threads {
    role_mask processor;
    count 4;
}

route {
    /echo echo;
    /static static_file;
}
`

func TestFromDirectivesParsesFullConfig(t *testing.T) {
	directives, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg, err := FromDirectives(directives)
	if err != nil {
		t.Fatalf("FromDirectives: %v", err)
	}

	if cfg.IOBufferSize != 16384 {
		t.Fatalf("IOBufferSize = %d, want 16384", cfg.IOBufferSize)
	}
	if cfg.ConnectionTimeout != 30*time.Second {
		t.Fatalf("ConnectionTimeout = %v, want 30s", cfg.ConnectionTimeout)
	}
	if cfg.KeepaliveTimeout != 10*time.Second {
		t.Fatalf("KeepaliveTimeout = %v, want 10s", cfg.KeepaliveTimeout)
	}
	if cfg.TLSCertFile != "/etc/latypus/cert.pem" {
		t.Fatalf("TLSCertFile = %q", cfg.TLSCertFile)
	}
	if len(cfg.Listen) != 2 {
		t.Fatalf("len(Listen) = %d, want 2", len(cfg.Listen))
	}
	if cfg.Listen[1].Port != 8443 || !cfg.Listen[1].TLS {
		t.Fatalf("unexpected second listen entry: %+v", cfg.Listen[1])
	}
	if len(cfg.Threads) != 1 || cfg.Threads[0].Count != 4 {
		t.Fatalf("unexpected threads: %+v", cfg.Threads)
	}
	if cfg.Route["/echo"] != "echo" || cfg.Route["/static"] != "static_file" {
		t.Fatalf("unexpected route table: %+v", cfg.Route)
	}
}

func TestDefaultFillsUnsetOptions(t *testing.T) {
	directives, err := Parse([]byte(`io_buffer_size 1024;`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg, err := FromDirectives(directives)
	if err != nil {
		t.Fatalf("FromDirectives: %v", err)
	}
	if cfg.HeaderBufferSize != Default().HeaderBufferSize {
		t.Fatalf("HeaderBufferSize = %d, want default %d", cfg.HeaderBufferSize, Default().HeaderBufferSize)
	}
}
