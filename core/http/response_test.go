package http

import (
	"errors"
	"strings"
	"testing"
)

func TestResponse_AppendTo(t *testing.T) {
	var r Response
	r.Status = 404
	r.Body = error404Form
	r.SetHeader(HeaderContentLength, "49")
	r.SetHeader(HeaderContentType, "text/html")
	r.SetHeader(HeaderConnection, "close")

	got := string(r.AppendTo(nil))
	want := "HTTP/1.1 404 Not Found\r\n" +
		"Content-Length: 49\r\n" +
		"Content-Type: text/html\r\n" +
		"Connection: close\r\n" +
		"\r\n" + error404Form
	if got != want {
		t.Errorf("AppendTo =\n%q\nwant\n%q", got, want)
	}
	if r.Len() != len(want) {
		t.Errorf("Len() = %d, want %d", r.Len(), len(want))
	}
}

func TestResponse_FileNotCopied(t *testing.T) {
	var r Response
	r.Status = 200
	r.File = []byte("file contents")
	r.SetHeader(HeaderContentLength, "13")

	out := string(r.AppendTo(nil))
	if strings.Contains(out, "file contents") {
		t.Error("file segment must not be serialized into the header buffer")
	}
	if r.ContentLength() != 13 {
		t.Errorf("ContentLength() = %d", r.ContentLength())
	}
}

func TestResponse_WriteToOverflow(t *testing.T) {
	var r Response
	r.Status = 200
	r.SetHeader("X-Big", strings.Repeat("x", WriteBufferSize))

	var buf [WriteBufferSize]byte
	if _, err := r.WriteTo(buf[:]); !errors.Is(err, ErrResponseTooLarge) {
		t.Errorf("expected ErrResponseTooLarge, got %v", err)
	}
}

func TestHTTPCode_StatusCode(t *testing.T) {
	cases := map[HTTPCode]int{
		FileRequest:      200,
		BadRequest:       400,
		ForbiddenRequest: 403,
		NoResource:       404,
		InternalError:    500,
		NoRequest:        0,
		GetRequest:       0,
	}
	for code, want := range cases {
		if got := code.StatusCode(); got != want {
			t.Errorf("%v.StatusCode() = %d, want %d", code, got, want)
		}
	}
}

func TestHTTPCode_String(t *testing.T) {
	for code := NoRequest; code <= InternalError; code++ {
		if code.String() == "unknown" {
			t.Errorf("HTTPCode(%d) has no name", int(code))
		}
	}
	if got := (InternalError + 1).String(); got != "unknown" {
		t.Errorf("code past InternalError = %q, want unknown", got)
	}
}
