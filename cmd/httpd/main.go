// Command httpd serves static files from a document root over HTTP/1.1.
//
//	httpd [flags] <port>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/searchktools/edge-httpd/app"
	"github.com/searchktools/edge-httpd/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	cfg, err := config.Parse(args, stderr)
	if err != nil {
		if errors.Is(err, config.ErrUsage) {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintf(stderr, "httpd: %v\n", err)
		return 1
	}

	a, err := app.New(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "httpd: %v\n", err)
		return 1
	}

	if err := a.Run(context.Background()); err != nil {
		a.Logger().Error("server failed", "error", err)
		return 1
	}
	return 0
}
