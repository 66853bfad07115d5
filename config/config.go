// Package config loads the engine's configuration from the nested
// block/statement file format described by the original engine's
// config_parser, and holds the immutable-after-load option set:
// buffer sizes, timeouts, connection caps, listen addresses, TLS
// material, thread role assignments, and the route table.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Listen describes one listening socket to open at startup.
type Listen struct {
	Addr      string
	Port      int
	ProtoKind string
	TLS       bool
}

// ThreadGroup assigns a count of threads to a set of roles (e.g.
// "processor", or "listen accept" combined on one thread).
type ThreadGroup struct {
	Roles []string
	Count int
}

// Config is the full, immutable-after-load option set recognized by
// the engine, per the original's {io_buffer_size, header_buffer_size,
// connection_timeout, keepalive_timeout, server_connections,
// client_connections, listen, tls_*, threads, route} option set.
type Config struct {
	IOBufferSize      int           `config:"io_buffer_size"`
	HeaderBufferSize  int           `config:"header_buffer_size"`
	ConnectionTimeout time.Duration `config:"connection_timeout"`
	KeepaliveTimeout  time.Duration `config:"keepalive_timeout"`
	ServerConnections int           `config:"server_connections"`
	ClientConnections int           `config:"client_connections"`

	TLSCAFile   string `config:"tls_ca_file"`
	TLSCertFile string `config:"tls_cert_file"`
	TLSKeyFile  string `config:"tls_key_file"`

	// StaticRoot is the filesystem directory served by the
	// "static_file" route handler kind, not part of the original
	// option set but needed to make that handler kind configurable.
	StaticRoot string `config:"static_root"`

	Listen  []Listen
	Threads []ThreadGroup
	Route   map[string]string
}

// Default returns the engine's built-in option set, used for any
// directive a config file omits.
func Default() *Config {
	return &Config{
		IOBufferSize:      8192,
		HeaderBufferSize:  8192,
		ConnectionTimeout: 60 * time.Second,
		KeepaliveTimeout:  30 * time.Second,
		ServerConnections: 4096,
		ClientConnections: 1024,
		Route:             map[string]string{},
	}
}

// Load reads and parses the config file at path, starting from
// Default() and overlaying every recognized directive it finds.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	directives, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return FromDirectives(directives)
}

// FromDirectives builds a Config from an already-parsed directive
// tree, starting from Default(). Scalar directives (io_buffer_size,
// connection_timeout, tls_cert_file, ...) go through a Manager so
// adding a new scalar option later only means adding a struct field
// and a config tag; the list-shaped directives (listen, threads,
// route) are structural and are handled directly since they don't fit
// a flat dotted-key store.
func FromDirectives(directives []*Directive) (*Config, error) {
	cfg := Default()
	mgr := NewManager()

	for _, d := range directives {
		switch d.Name {
		case "listen":
			l, err := parseListen(d)
			if err != nil {
				return nil, err
			}
			cfg.Listen = append(cfg.Listen, l)
		case "threads":
			tg, err := parseThreadGroup(d)
			if err != nil {
				return nil, err
			}
			cfg.Threads = append(cfg.Threads, tg)
		case "route":
			if err := parseRoute(d, cfg.Route); err != nil {
				return nil, err
			}
		default:
			if len(d.Args) != 1 {
				return nil, fmt.Errorf("config: directive %q expects exactly one value, got %d", d.Name, len(d.Args))
			}
			mgr.Set(d.Name, d.Args[0])
		}
	}

	durationFields := map[string]bool{"connection_timeout": true, "keepalive_timeout": true}
	for key := range durationFields {
		if raw, ok := mgr.Get(key); ok {
			if s, ok := raw.(string); ok {
				d, err := time.ParseDuration(s)
				if err != nil {
					if secs, serr := strconv.Atoi(s); serr == nil {
						d = time.Duration(secs) * time.Second
					} else {
						return nil, fmt.Errorf("config: %s: %w", key, err)
					}
				}
				switch key {
				case "connection_timeout":
					cfg.ConnectionTimeout = d
				case "keepalive_timeout":
					cfg.KeepaliveTimeout = d
				}
				mgr.Delete(key)
			}
		}
	}

	if err := mgr.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseListen(d *Directive) (Listen, error) {
	l := Listen{Addr: "0.0.0.0"}
	for _, child := range d.Children {
		if len(child.Args) == 0 {
			continue
		}
		switch child.Name {
		case "addr":
			l.Addr = child.Args[0]
		case "port":
			port, err := strconv.Atoi(child.Args[0])
			if err != nil {
				return Listen{}, fmt.Errorf("config: listen.port: %w", err)
			}
			l.Port = port
		case "proto_kind":
			l.ProtoKind = child.Args[0]
		case "tls":
			l.TLS = child.Args[0] == "on" || child.Args[0] == "true"
		}
	}
	return l, nil
}

func parseThreadGroup(d *Directive) (ThreadGroup, error) {
	tg := ThreadGroup{Count: 1}
	for _, child := range d.Children {
		switch child.Name {
		case "role_mask":
			tg.Roles = append([]string{}, child.Args...)
		case "count":
			if len(child.Args) == 0 {
				continue
			}
			count, err := strconv.Atoi(child.Args[0])
			if err != nil {
				return ThreadGroup{}, fmt.Errorf("config: threads.count: %w", err)
			}
			tg.Count = count
		}
	}
	return tg, nil
}

func parseRoute(d *Directive, route map[string]string) error {
	for _, child := range d.Children {
		if len(child.Args) != 1 {
			return fmt.Errorf("config: route entry %q expects exactly one handler kind", child.Name)
		}
		route[child.Name] = child.Args[0]
	}
	return nil
}
