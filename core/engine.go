package core

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/searchktools/edge-httpd/core/http"
	"github.com/searchktools/edge-httpd/core/observability"
	"github.com/searchktools/edge-httpd/core/poller"
	"github.com/searchktools/edge-httpd/core/pools"
	"github.com/searchktools/edge-httpd/core/resource"
)

// Options configures an Engine
type Options struct {
	Addr        string // host:port, port 0 picks a free one
	DocRoot     string
	Workers     int // 0 means runtime.NumCPU
	MaxRequests int // task queue capacity
	MaxConns    int // live connection cap, 0 means MaxFD
	ContentType string
	AllowDotDot bool
	IdleTimeout time.Duration // 0 disables the idle sweep
	Logger      *slog.Logger
}

// Engine is the reactor: one goroutine waits on epoll, accepts clients,
// hands readable connections to the worker pool and drains writable ones.
type Engine struct {
	opts   Options
	logger *slog.Logger

	poller  *poller.EpollPoller
	pool    *pools.WorkerPool
	conns   *http.Arena
	users   atomic.Int64
	env     *http.Env
	monitor *observability.PerformanceMonitor
	metrics *observability.Metrics

	ln     *net.TCPListener
	lnFile *os.File
	lfd    int

	started   atomic.Int64
	lastSweep time.Time
	accepted  atomic.Uint64
	refused   atomic.Uint64

	running  atomic.Bool
	closed   atomic.Bool
	shutOnce sync.Once
	done     chan struct{}
}

// NewEngine creates the poller, worker pool and connection arena.
// Failure here is fatal for the server.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = DefaultMaxRequests
	}
	if opts.MaxConns <= 0 || opts.MaxConns > MaxFD {
		opts.MaxConns = MaxFD
	}

	e := &Engine{
		opts:   opts,
		logger: opts.Logger,
		lfd:    -1,
		done:   make(chan struct{}),
	}

	p, err := poller.NewPoller(MaxEventNumber)
	if err != nil {
		return nil, fmt.Errorf("create poller: %w", err)
	}
	e.poller = p

	pool, err := pools.NewWorkerPool(opts.Workers, opts.MaxRequests)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	e.pool = pool

	e.metrics, err = observability.NewMetrics(e.users.Load)
	if err != nil {
		pool.Close()
		p.Close()
		return nil, fmt.Errorf("create metrics: %w", err)
	}
	e.monitor = observability.NewPerformanceMonitor(e.metrics)

	e.conns = http.NewArena(arenaSize())
	e.env = &http.Env{
		Poller:      p,
		Users:       &e.users,
		Resolver:    resource.NewResolver(opts.DocRoot, opts.AllowDotDot),
		ContentType: opts.ContentType,
		Logger:      opts.Logger,
		Recorder:    e.monitor,
	}

	return e, nil
}

// arenaSize bounds the arena by the process descriptor limit and MaxFD.
func arenaSize() int {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil || rl.Cur > MaxFD {
		return MaxFD
	}
	return int(rl.Cur)
}

// Listen binds the listening socket and registers it for level-triggered
// read readiness. Run calls it when it has not been called yet.
func (e *Engine) Listen() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if e.ln != nil {
		return nil
	}

	laddr, err := net.ResolveTCPAddr("tcp", e.opts.Addr)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", e.opts.Addr, err)
	}

	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	lnFile, err := ln.File()
	if err != nil {
		ln.Close()
		return fmt.Errorf("listener fd: %w", err)
	}
	lfd := int(lnFile.Fd())

	if err := unix.SetNonblock(lfd, true); err != nil {
		lnFile.Close()
		ln.Close()
		return fmt.Errorf("set nonblock: %w", err)
	}

	if err := e.poller.Add(lfd, poller.EventRead); err != nil {
		lnFile.Close()
		ln.Close()
		return fmt.Errorf("register listener: %w", err)
	}

	e.ln, e.lnFile, e.lfd = ln, lnFile, lfd
	return nil
}

// Addr returns the bound listening address, nil before Listen.
func (e *Engine) Addr() net.Addr {
	if e.ln == nil {
		return nil
	}
	return e.ln.Addr()
}

// Run drives the reactor until ctx is cancelled, then shuts the engine
// down. It returns nil on a clean shutdown.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Listen(); err != nil {
		return err
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	stop := context.AfterFunc(ctx, func() { e.poller.Wake() })
	defer stop()

	e.lastSweep = time.Now()
	e.started.Store(e.lastSweep.UnixNano())
	e.logger.Info("server listening",
		"addr", e.Addr().String(),
		"workers", e.pool.Stats().NumWorkers,
		"queue", e.opts.MaxRequests,
		"max_conns", e.opts.MaxConns,
		"arena", e.conns.Len(),
		"doc_root", e.env.Resolver.Root,
		"idle_timeout", e.opts.IdleTimeout,
	)

	timeout := e.waitTimeout()
	for ctx.Err() == nil {
		events, err := e.poller.Wait(timeout)
		if err != nil {
			if e.closed.Load() {
				break
			}
			e.logger.Error("poller wait", "error", err)
			e.Shutdown()
			return fmt.Errorf("poller wait: %w", err)
		}

		for _, ev := range events {
			if ev.Fd == e.lfd {
				e.acceptConnections()
				continue
			}
			e.handleEvent(ev)
		}

		e.sweepIdle()
	}

	e.Shutdown()
	return nil
}

// waitTimeout returns the epoll timeout in milliseconds. Without an idle
// timeout the reactor blocks until an event or a wake-up.
func (e *Engine) waitTimeout() int {
	if e.opts.IdleTimeout <= 0 {
		return -1
	}
	tick := e.opts.IdleTimeout / 2
	if tick > time.Second {
		tick = time.Second
	}
	if tick < time.Millisecond {
		tick = time.Millisecond
	}
	return int(tick / time.Millisecond)
}

// acceptConnections accepts until the backlog is drained
func (e *Engine) acceptConnections() {
	for {
		nfd, sa, err := unix.Accept4(e.lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EINTR, unix.ECONNABORTED:
				continue
			}
			e.logger.Error("accept", "error", err)
			return
		}

		if e.users.Load() >= int64(e.opts.MaxConns) {
			e.refused.Add(1)
			e.logger.Warn("connection limit reached", "live", e.users.Load(), "max", e.opts.MaxConns)
			unix.Close(nfd)
			continue
		}

		c := e.conns.Acquire(nfd)
		if c == nil {
			e.refused.Add(1)
			e.logger.Warn("descriptor outside arena", "fd", nfd, "arena", e.conns.Len())
			unix.Close(nfd)
			continue
		}

		unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

		addr := sockaddrString(sa)
		if err := c.Init(nfd, addr, e.env); err != nil {
			e.logger.Error("register connection", "fd", nfd, "remote", addr, "error", err)
			continue
		}
		e.accepted.Add(1)
		e.logger.Debug("connection accepted", "fd", nfd, "remote", addr)
	}
}

// handleEvent dispatches one client readiness event. The connection is
// disarmed while this runs, so the reactor owns it.
func (e *Engine) handleEvent(ev poller.Event) {
	c := e.conns.Get(ev.Fd)
	if c == nil || !c.Own() {
		return
	}

	switch {
	case ev.Closed():
		c.Close()

	case ev.Readable():
		if !c.Read() {
			c.Close()
			return
		}
		c.MarkBusy()
		if err := e.pool.Submit(c); err != nil {
			e.logger.Warn("request rejected", "fd", ev.Fd, "error", err)
			if !c.Reject(http.InternalError) {
				c.Close()
			}
		}

	case ev.Writable():
		if !c.Flush() {
			c.Close()
		}
	}
}

// sweepIdle closes connections with no I/O for longer than IdleTimeout.
// Connections owned by a worker are skipped.
func (e *Engine) sweepIdle() {
	if e.opts.IdleTimeout <= 0 {
		return
	}
	now := time.Now()
	if now.Sub(e.lastSweep) < time.Duration(e.waitTimeout())*time.Millisecond {
		return
	}
	e.lastSweep = now

	e.conns.Each(func(c *http.Conn) {
		if c.Busy() || now.Sub(c.IdleSince()) <= e.opts.IdleTimeout {
			return
		}
		e.logger.Debug("closing idle connection", "fd", c.Fd(), "remote", c.RemoteAddr())
		c.Close()
	})
}

// Shutdown releases the workers, closes every connection, the poller and
// the listener. It is safe to call more than once and from any goroutine
// once Run has returned or was never started.
func (e *Engine) Shutdown() {
	e.shutOnce.Do(func() {
		e.closed.Store(true)

		dropped := e.pool.Close()

		live := e.users.Load()
		e.conns.Each(func(c *http.Conn) { c.Close() })

		if e.lnFile != nil {
			e.lnFile.Close()
		}
		if e.ln != nil {
			e.ln.Close()
		}
		e.poller.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := e.metrics.Shutdown(ctx); err != nil {
			e.logger.Warn("metrics shutdown", "error", err)
		}

		e.logger.Info("server stopped",
			"closed_conns", live,
			"dropped_tasks", len(dropped),
			"served", e.monitor.TotalRequests(),
		)
		close(e.done)
	})
}

// Done is closed once Shutdown has completed.
func (e *Engine) Done() <-chan struct{} { return e.done }

// LiveConns returns the number of open client connections.
func (e *Engine) LiveConns() int64 { return e.users.Load() }

// Monitor exposes the per-status request monitor.
func (e *Engine) Monitor() *observability.PerformanceMonitor { return e.monitor }

// Metrics exposes the OpenTelemetry instruments.
func (e *Engine) Metrics() *observability.Metrics { return e.metrics }

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	}
	return ""
}
