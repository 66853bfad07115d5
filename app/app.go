// Package app wires a loaded config.Config into a running httpproto
// server and client engine: building the route table, opening listen
// sockets, and handling graceful shutdown on SIGINT/SIGTERM.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fast01/latypus/config"
	"github.com/fast01/latypus/engine"
	"github.com/fast01/latypus/handlers"
	"github.com/fast01/latypus/httpproto"
	"github.com/fast01/latypus/router"
)

// App owns the server engine built from a config.Config and the
// client engine available to any handler that needs to originate
// outbound requests.
type App struct {
	cfg *config.Config
	log *logrus.Logger

	server *httpproto.Server
	client *httpproto.Client
}

// New builds an App from cfg: a router populated from cfg.Route, an
// HTTP server engine bound to it, and an HTTP client engine sized from
// cfg.ClientConnections.
func New(cfg *config.Config, log *logrus.Logger) (*App, error) {
	if log == nil {
		log = logrus.New()
	}

	r := router.New[httpproto.ServerHandlerFactory]()
	for path, kind := range cfg.Route {
		factory, err := buildHandler(kind, cfg)
		if err != nil {
			return nil, err
		}
		r.Register(path, factory)
	}

	serverCfg := engine.Config{
		Threads:           serverThreadCount(cfg),
		IOBufferSize:      cfg.IOBufferSize,
		HeaderBufferSize:  cfg.HeaderBufferSize,
		ConnectionTimeout: cfg.ConnectionTimeout,
		MaxConnections:    cfg.ServerConnections,
		InboxCapacity:     1024,
	}
	server, err := httpproto.NewServer(serverCfg, r, log)
	if err != nil {
		return nil, fmt.Errorf("app: building server engine: %w", err)
	}

	clientCfg := engine.DefaultConfig()
	clientCfg.MaxConnections = cfg.ClientConnections
	client, err := httpproto.NewClient(clientCfg, 0, log)
	if err != nil {
		return nil, fmt.Errorf("app: building client engine: %w", err)
	}

	return &App{cfg: cfg, log: log, server: server, client: client}, nil
}

// buildHandler maps a route table's handler_kind string to a concrete
// ServerHandlerFactory. Unknown kinds are rejected at startup rather
// than at first request.
func buildHandler(kind string, cfg *config.Config) (httpproto.ServerHandlerFactory, error) {
	switch kind {
	case "echo":
		return handlers.NewEcho(), nil
	case "static_file":
		root := cfg.StaticRoot
		if root == "" {
			root = "."
		}
		return handlers.NewStaticFile(root, ""), nil
	default:
		return nil, fmt.Errorf("app: unknown route handler kind %q", kind)
	}
}

func serverThreadCount(cfg *config.Config) int {
	for _, tg := range cfg.Threads {
		for _, role := range tg.Roles {
			if role == "processor" {
				return tg.Count
			}
		}
	}
	return engine.DefaultConfig().Threads
}

// Server exposes the underlying HTTP server engine, for tests or
// embedding callers that want to register routes beyond cfg.Route.
func (a *App) Server() *httpproto.Server { return a.server }

// Client exposes the underlying HTTP client engine.
func (a *App) Client() *httpproto.Client { return a.client }

// Run opens every configured listener, starts both engines, and blocks
// until SIGINT/SIGTERM, then shuts both engines down with a bounded
// grace period.
func (a *App) Run() error {
	a.server.Engine().Start()
	a.client.Engine().Start()

	for _, l := range a.cfg.Listen {
		if l.ProtoKind != "" && l.ProtoKind != "http_server" {
			continue
		}
		addr := fmt.Sprintf("%s:%d", l.Addr, l.Port)
		if err := a.server.Listen(addr); err != nil {
			return fmt.Errorf("app: listening on %s: %w", addr, err)
		}
		a.log.WithField("addr", addr).Info("listening")
	}

	a.awaitSignal()
	return a.Shutdown(10 * time.Second)
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	a.log.WithField("signal", sig).Info("shutting down")
}

// Shutdown stops both engines, giving their thread event loops up to
// grace to exit. Open connections are neither drained nor closed.
func (a *App) Shutdown(grace time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	var firstErr error
	if err := a.server.Engine().Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.client.Engine().Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
