package poller

// Events is a set of readiness flags understood by the poller.
type Events uint32

// Event is one readiness notification returned by Wait.
type Event struct {
	Fd     int
	Events Events
}

// Readable reports whether the descriptor can be read.
func (e Event) Readable() bool { return e.Events&EventRead != 0 }

// Writable reports whether the descriptor can be written.
func (e Event) Writable() bool { return e.Events&EventWrite != 0 }

// Closed reports hang-up, peer shutdown or a socket error.
func (e Event) Closed() bool { return e.Events&(EventPeerClosed|EventHangup|EventError) != 0 }

// Registrar is the subset of Poller a connection needs to manage its own
// registration.
type Registrar interface {
	// Add registers fd with the given interest set.
	Add(fd int, events Events) error
	// Modify replaces the interest set of fd. With EventOneShot this is
	// the re-arm operation.
	Modify(fd int, events Events) error
	Remove(fd int) error
}

// Poller is the I/O multiplexing interface
type Poller interface {
	Registrar
	// Wait blocks up to timeout milliseconds (-1 blocks forever).
	Wait(timeout int) ([]Event, error)
	// Wake interrupts a blocked Wait.
	Wake() error
	Close() error
}
