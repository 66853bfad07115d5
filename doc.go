/*
Package latypus is a multi-threaded HTTP/1.x engine built around a
pluggable protocol registry: a thread-pool scheduler dispatches I/O
readiness and cross-thread messages to per-protocol state and action
callbacks, driving both an HTTP server and an HTTP client through the
same scheduling machinery.

Architecture

The engine is layered bottom-up:

  - queue: a lock-free bounded MPMC ring buffer, used both for
    cross-thread message passing and free-list management.
  - poller: a non-blocking readiness abstraction over epoll (Linux)
    and kqueue (BSD/macOS).
  - netio: non-blocking TCP sockets with an optional TLS overlay.
  - registry: the protocol descriptor tables (socket kinds, actions,
    states, thread role masks) a protocol registers once at startup.
  - engine: the thread pool and connection slot pool that drive a
    registered protocol's state machine.
  - httpproto: the HTTP/1.x server and client state machines built on
    top of engine and registry.
  - router: a generic longest-prefix-match route table.
  - handlers: the echo and static-file route handlers.
  - config: the nested block/statement config file format and the
    typed option set it populates.
  - stats: an atomic-counter snapshot of engine health.

Quick start

	cfg, err := config.Load("latypus.conf")
	if err != nil {
	    log.Fatal(err)
	}
	a, err := app.New(cfg, logrus.New())
	if err != nil {
	    log.Fatal(err)
	}
	log.Fatal(a.Run())

Non-goals

HTTP/2, HTTP/3, WebSocket upgrade, persistent disk state, and graceful
restart across process replacement are out of scope.
*/
package latypus
