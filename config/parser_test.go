package config

import "testing"

func TestParseFlatStatement(t *testing.T) {
	directives, err := Parse([]byte(`io_buffer_size 8192;`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(directives) != 1 {
		t.Fatalf("len(directives) = %d, want 1", len(directives))
	}
	d := directives[0]
	if d.Name != "io_buffer_size" || len(d.Args) != 1 || d.Args[0] != "8192" {
		t.Fatalf("unexpected directive: %+v", d)
	}
}

func TestParseNestedBlock(t *testing.T) {
	src := `
listen {
    addr 0.0.0.0;
    port 8080;
}
`
	directives, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(directives) != 1 || directives[0].Name != "listen" {
		t.Fatalf("unexpected top level: %+v", directives)
	}
	children := directives[0].Children
	if len(children) != 2 || children[0].Name != "addr" || children[1].Name != "port" {
		t.Fatalf("unexpected children: %+v", children)
	}
}

func TestParseQuotedStringWithEscape(t *testing.T) {
	directives, err := Parse([]byte(`tls_cert_file "/etc/lat\"ypus/cert.pem";`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if directives[0].Args[0] != `/etc/lat"ypus/cert.pem` {
		t.Fatalf("unexpected unescaped value: %q", directives[0].Args[0])
	}
}

func TestParseCommentsIgnored(t *testing.T) {
	src := "# top comment\nio_buffer_size 4096; # trailing\n"
	directives, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(directives) != 1 || directives[0].Args[0] != "4096" {
		t.Fatalf("unexpected directives: %+v", directives)
	}
}

func TestParseMissingSemicolonErrors(t *testing.T) {
	if _, err := Parse([]byte(`io_buffer_size 4096`)); err == nil {
		t.Fatal("expected error for missing ';'")
	}
}

func TestParseUnmatchedBraceErrors(t *testing.T) {
	if _, err := Parse([]byte(`listen { addr 0.0.0.0;`)); err == nil {
		t.Fatal("expected error for unterminated block")
	}
	if _, err := Parse([]byte(`}`)); err == nil {
		t.Fatal("expected error for stray closing brace")
	}
}
