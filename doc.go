/*
Package edgehttpd is a single-process static file server for HTTP/1.1 GET
requests, built on edge-triggered epoll with one-shot registrations and a
fixed pool of worker goroutines.

Features

  - Reactor: one goroutine waits on epoll, accepts clients and drains
    writable sockets
  - Workers: a bounded FIFO queue feeds a fixed set of goroutines that
    parse requests and build responses
  - Incremental parsing: requests may arrive split at any byte boundary
  - Zero-copy responses: files are memory mapped and sent with writev
    together with the header block
  - Keep-alive: connections are reset and re-armed after each response
  - Observability: per-status counters, OpenTelemetry instruments and a
    stats dump on SIGUSR1

Quick Start

	httpd -doc-root /srv/www 8080

or, embedded:

	cfg := config.Default()
	cfg.Port = 8080
	cfg.DocRoot = "/srv/www"

	a, err := app.New(cfg, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}
	if err := a.Run(context.Background()); err != nil {
		log.Fatal(err)
	}

Modules

  - app: Application lifecycle, logging and signals
  - config: Flags, environment and JSON configuration
  - core: Reactor engine and statistics
  - core/http: Connection state machine, request parser, response builder
  - core/resource: URL to mapped file resolution
  - core/pools: Worker pool and GC tuning
  - core/poller: epoll wrapper
  - core/observability: Request monitor and metrics

Status codes

Responses are 200, 400, 403, 404 or 500. Protocol errors close the
connection after the response; resource errors keep it open when the
client asked for keep-alive.
*/
package edgehttpd
