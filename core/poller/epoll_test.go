//go:build linux
// +build linux

package poller

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestEpollPoller_OneShotRequiresRearm(t *testing.T) {
	p, err := NewPoller(16)
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	defer p.Close()

	a, b := socketPair(t)
	if err := p.Add(a, EventRead|EventEdge|EventOneShot); err != nil {
		t.Fatalf("Add: %v", err)
	}

	unix.Write(b, []byte("x"))
	evs, err := p.Wait(1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(evs) != 1 || evs[0].Fd != a || !evs[0].Readable() {
		t.Fatalf("expected one readable event for fd %d, got %+v", a, evs)
	}

	// disarmed: new data must not be reported
	unix.Write(b, []byte("y"))
	evs, _ = p.Wait(50)
	if len(evs) != 0 {
		t.Fatalf("expected no events before re-arm, got %+v", evs)
	}

	if err := p.Modify(a, EventRead|EventEdge|EventOneShot); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	evs, _ = p.Wait(1000)
	if len(evs) != 1 || !evs[0].Readable() {
		t.Fatalf("expected readable event after re-arm, got %+v", evs)
	}
}

func TestEpollPoller_WriteInterest(t *testing.T) {
	p, err := NewPoller(16)
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	defer p.Close()

	a, _ := socketPair(t)
	if err := p.Add(a, EventWrite|EventOneShot); err != nil {
		t.Fatalf("Add: %v", err)
	}
	evs, _ := p.Wait(1000)
	if len(evs) != 1 || !evs[0].Writable() {
		t.Fatalf("expected writable event, got %+v", evs)
	}
}

func TestEpollPoller_PeerClose(t *testing.T) {
	p, err := NewPoller(16)
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	defer p.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[0])

	if err := p.Add(fds[0], EventRead|EventPeerClosed|EventEdge|EventOneShot); err != nil {
		t.Fatalf("Add: %v", err)
	}
	unix.Close(fds[1])

	evs, _ := p.Wait(1000)
	if len(evs) != 1 || !evs[0].Closed() {
		t.Fatalf("expected hang-up event, got %+v", evs)
	}
}

func TestEpollPoller_Wake(t *testing.T) {
	p, err := NewPoller(16)
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	defer p.Close()

	done := make(chan []Event, 1)
	go func() {
		evs, _ := p.Wait(-1)
		done <- evs
	}()

	time.Sleep(20 * time.Millisecond)
	if err := p.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}

	select {
	case evs := <-done:
		if len(evs) != 0 {
			t.Errorf("wake-up must not surface as an event, got %+v", evs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait was not interrupted by Wake")
	}
}
