package core

import (
	"bufio"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"sync"
	"testing"
	"time"
)

// Many keep-alive clients against a small pool: every response must be
// complete and the engine must end with no live connections. Run it with
// -race to check the reactor/worker hand-off.
func TestStress_ConcurrentKeepAlive(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}

	const (
		clients  = 32
		requests = 50
	)
	e, _, _ := startEngine(t, func(o *Options) {
		o.Workers = 4
		o.MaxRequests = clients * 2
	})

	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- runClient(e.Addr().String(), requests)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, "all responses recorded", func() bool {
		return e.Stats().Requests == clients*requests && e.LiveConns() == 0
	})
}

func runClient(addr string, requests int) error {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(10 * time.Second))
	br := bufio.NewReader(c)

	for i := 0; i < requests; i++ {
		conn := "keep-alive"
		if i == requests-1 {
			conn = "close"
		}
		if _, err := io.WriteString(c, "GET /index.html HTTP/1.1\r\nConnection: "+conn+"\r\n\r\n"); err != nil {
			return err
		}
		resp, err := nethttp.ReadResponse(br, nil)
		if err != nil {
			return err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}
		if resp.StatusCode != 200 || string(body) != indexBody {
			return fmt.Errorf("request %d: status %d body %q", i, resp.StatusCode, body)
		}
	}
	return nil
}
