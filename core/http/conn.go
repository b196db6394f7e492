package http

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/searchktools/edge-httpd/core/poller"
	"github.com/searchktools/edge-httpd/core/resource"
)

// Buffer sizes
const (
	ReadBufferSize  = 2048
	WriteBufferSize = 1024
)

// interest set shared by every client registration
const connEvents = poller.EventPeerClosed | poller.EventEdge | poller.EventOneShot

// Recorder receives one call per fully sent response
type Recorder interface {
	RecordRequest(status int, duration time.Duration, sent int64)
}

// Env is the state shared by all connections of one engine. It is owned
// by the engine and injected at Init.
type Env struct {
	Poller      poller.Registrar
	Users       *atomic.Int64
	Resolver    *resource.Resolver
	ContentType string
	Logger      *slog.Logger
	Recorder    Recorder
}

func (e *Env) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Env) contentType() string {
	if e.ContentType == "" {
		return DefaultContentType
	}
	return e.ContentType
}

// Conn is the per-socket state machine. Conns live in an fd-indexed
// arena and are reused across sockets.
//
// Ownership: between a readiness event and the following re-arm exactly
// one goroutine (the reactor or a single worker) touches a Conn. The owner
// re-arms under mu and the next owner calls Own before touching any
// field, so the hand-off through epoll is ordered for the memory model.
// mu also serializes Close against re-arming so a closed fd is never
// re-armed.
type Conn struct {
	mu   sync.Mutex
	fd   int
	addr string
	env  *Env

	readBuf    [ReadBufferSize]byte
	readIdx    int // next unwritten byte
	checkedIdx int // next unexamined byte
	startLine  int

	state CheckState
	req   Request
	file  *resource.File

	writeBuf      [WriteBufferSize]byte
	writeIdx      int
	resp          Response
	iv            [2][]byte
	ivCount       int
	bytesToSend   int
	bytesHaveSent int
	status        int

	started    time.Time
	lastActive atomic.Int64
	busy       atomic.Bool
}

// NewConn returns an unbound connection.
func NewConn() *Conn {
	return &Conn{fd: -1}
}

// Init binds the Conn to a freshly accepted socket, registers it for
// one-shot edge-triggered read readiness and counts it as live.
func (c *Conn) Init(fd int, addr string, env *Env) error {
	c.mu.Lock()
	c.fd = fd
	c.addr = addr
	c.env = env
	c.mu.Unlock()

	c.reset()
	c.busy.Store(false)
	c.touch()
	env.Users.Add(1)

	if err := env.Poller.Add(fd, poller.EventRead|connEvents); err != nil {
		c.Close()
		return err
	}
	return nil
}

// reset clears all per-request state, keeping the socket.
func (c *Conn) reset() {
	if c.file != nil {
		c.file.Unmap()
		c.file = nil
	}

	clear(c.readBuf[:])
	c.readIdx = 0
	c.checkedIdx = 0
	c.startLine = 0
	c.state = StateRequestLine
	c.req.Reset()

	clear(c.writeBuf[:])
	c.writeIdx = 0
	c.resp.Reset()
	c.iv[0], c.iv[1] = nil, nil
	c.ivCount = 0
	c.bytesToSend = 0
	c.bytesHaveSent = 0
	c.status = 0
}

// Close removes the socket from the poller, closes it and releases the
// mapped file. Only the first call has any effect.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fd < 0 || c.env == nil {
		return
	}

	c.env.Poller.Remove(c.fd)
	unix.Close(c.fd)
	c.env.logger().Debug("connection closed", "fd", c.fd, "remote", c.addr)
	c.fd = -1
	c.env.Users.Add(-1)

	if c.file != nil {
		c.file.Unmap()
		c.file = nil
	}
	c.busy.Store(false)
}

// rearm re-enables the one-shot registration for the next I/O direction.
// It must be the owner's last action on the Conn.
func (c *Conn) rearm(ev poller.Events) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fd < 0 {
		return
	}
	c.busy.Store(false)
	if err := c.env.Poller.Modify(c.fd, ev|connEvents); err != nil {
		c.env.logger().Error("re-arm", "fd", c.fd, "error", err)
	}
}

// Own acquires the Conn after a readiness event and reports whether it is
// still bound to a socket. It must precede any access by the new owner
// and pairs with the previous owner's rearm.
func (c *Conn) Own() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fd >= 0
}

// Read drains the socket into the read buffer. It returns false when the
// peer closed, the socket failed or the buffer is exhausted.
func (c *Conn) Read() bool {
	if c.readIdx >= ReadBufferSize {
		return false
	}

	for c.readIdx < ReadBufferSize {
		n, err := unix.Read(c.fd, c.readBuf[c.readIdx:])
		if err != nil {
			if err == unix.EAGAIN {
				break
			}
			if err == unix.EINTR {
				continue
			}
			c.env.logger().Debug("read", "fd", c.fd, "error", err)
			return false
		}
		if n == 0 {
			return false
		}
		c.readIdx += n
	}

	c.touch()
	return true
}

// Process is run by a worker: parse what has been read, then either wait
// for more bytes or build the response and wait for write readiness.
func (c *Conn) Process() {
	code := c.processRead()
	if code == NoRequest {
		c.rearm(poller.EventRead)
		return
	}

	c.started = time.Now()
	if !c.processWrite(code) {
		c.Close()
		return
	}

	c.env.logger().Debug("request",
		"fd", c.fd,
		"method", c.req.Method,
		"url", c.req.URL,
		"status", c.status,
		"keep_alive", c.req.KeepAlive,
	)
	c.rearm(poller.EventWrite)
}

// Reject answers the buffered request with code without parsing it. Used
// by the reactor when the worker queue is full.
func (c *Conn) Reject(code HTTPCode) bool {
	c.started = time.Now()
	if !c.processWrite(code) {
		return false
	}
	c.rearm(poller.EventWrite)
	return true
}

// Flush writes pending response bytes. It returns false when the caller
// must close the connection: on a hard write error, or once a response
// without keep-alive has been fully sent.
func (c *Conn) Flush() bool {
	if c.bytesToSend == 0 {
		c.reset()
		c.rearm(poller.EventRead)
		return true
	}

	for {
		n, err := unix.Writev(c.fd, c.iv[:c.ivCount])
		if err != nil {
			if err == unix.EAGAIN {
				c.touch()
				c.rearm(poller.EventWrite)
				return true
			}
			if err == unix.EINTR {
				continue
			}
			c.env.logger().Debug("write", "fd", c.fd, "error", err)
			return false
		}

		c.bytesHaveSent += n
		c.bytesToSend -= n
		c.advance()

		if c.bytesToSend <= 0 {
			break
		}
	}

	c.touch()
	if c.env.Recorder != nil {
		c.env.Recorder.RecordRequest(c.status, time.Since(c.started), int64(c.bytesHaveSent))
	}

	if c.file != nil {
		c.file.Unmap()
		c.file = nil
	}

	if !c.req.KeepAlive {
		return false
	}
	c.reset()
	c.rearm(poller.EventRead)
	return true
}

// advance re-slices the segments past the bytes already sent.
func (c *Conn) advance() {
	if c.bytesHaveSent >= c.writeIdx {
		c.iv[0] = c.iv[0][:0]
		if c.ivCount == 2 {
			c.iv[1] = c.resp.File[c.bytesHaveSent-c.writeIdx:]
		}
		return
	}
	c.iv[0] = c.writeBuf[c.bytesHaveSent:c.writeIdx]
}

func (c *Conn) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// MarkBusy flags the Conn as handed to a worker.
func (c *Conn) MarkBusy() { c.busy.Store(true) }

// Busy reports whether a worker owns the Conn.
func (c *Conn) Busy() bool { return c.busy.Load() }

// IdleSince returns the time of the last successful I/O.
func (c *Conn) IdleSince() time.Time { return time.Unix(0, c.lastActive.Load()) }

// Fd returns the socket, -1 once closed.
func (c *Conn) Fd() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fd
}

// Live reports whether the Conn is bound to an open socket.
func (c *Conn) Live() bool { return c.Fd() >= 0 }

// RemoteAddr returns the peer address recorded at Init
func (c *Conn) RemoteAddr() string { return c.addr }

// Pending returns bytes sent and bytes still to send for the current
// response.
func (c *Conn) Pending() (sent, remaining int) { return c.bytesHaveSent, c.bytesToSend }
