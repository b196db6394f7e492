package http

// Arena maps socket descriptors to connections. A slot is allocated the
// first time its descriptor is accepted and reused for every later socket
// that gets the same number.
//
// Only the reactor goroutine calls Acquire; Get and Each are safe from the
// reactor as well.
type Arena struct {
	conns []*Conn
}

// NewArena creates an arena for descriptors in [0, n).
func NewArena(n int) *Arena {
	return &Arena{conns: make([]*Conn, n)}
}

// Len returns the number of addressable descriptors.
func (a *Arena) Len() int { return len(a.conns) }

// Get returns the connection for fd, or nil when fd is out of range or
// was never used.
func (a *Arena) Get(fd int) *Conn {
	if fd < 0 || fd >= len(a.conns) {
		return nil
	}
	return a.conns[fd]
}

// Acquire returns the slot for fd, allocating it on first use. It returns
// nil when fd does not fit in the arena.
func (a *Arena) Acquire(fd int) *Conn {
	if fd < 0 || fd >= len(a.conns) {
		return nil
	}
	c := a.conns[fd]
	if c == nil {
		c = NewConn()
		a.conns[fd] = c
	}
	return c
}

// Each calls fn for every allocated slot that is bound to a live socket.
func (a *Arena) Each(fn func(*Conn)) {
	for _, c := range a.conns {
		if c != nil && c.Live() {
			fn(c)
		}
	}
}
