package http

import (
	"errors"
	"strconv"
)

// HTTP header constants
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderHost          = "Host"
	HeaderConnection    = "Connection"
)

// DefaultContentType is sent with every response
const DefaultContentType = "text/html"

var ErrResponseTooLarge = errors.New("response header exceeds write buffer")

// Header is one response header field
type Header struct {
	Key, Value string
}

// Response is a typed description of a response, serialized once into
// the connection's write buffer. Body is copied after the header block;
// File is sent as a separate zero-copy segment.
type Response struct {
	Status  int
	Headers []Header
	Body    string
	File    []byte
}

// Reset clears the response, keeping header capacity
func (r *Response) Reset() {
	r.Status = 0
	r.Headers = r.Headers[:0]
	r.Body = ""
	r.File = nil
}

// SetHeader appends a header field
func (r *Response) SetHeader(key, value string) {
	r.Headers = append(r.Headers, Header{Key: key, Value: value})
}

// ContentLength is the length of the payload following the header block
func (r *Response) ContentLength() int {
	return len(r.Body) + len(r.File)
}

// Len returns the number of bytes AppendTo writes.
func (r *Response) Len() int {
	n := len("HTTP/1.1 ") + len(strconv.Itoa(r.Status)) + 1 + len(StatusText(r.Status)) + 2
	for _, h := range r.Headers {
		n += len(h.Key) + 2 + len(h.Value) + 2
	}
	n += 2
	return n + len(r.Body)
}

// AppendTo serializes the status line, headers, blank line and inline
// body to dst.
func (r *Response) AppendTo(dst []byte) []byte {
	dst = append(dst, "HTTP/1.1 "...)
	dst = strconv.AppendInt(dst, int64(r.Status), 10)
	dst = append(dst, ' ')
	dst = append(dst, StatusText(r.Status)...)
	dst = append(dst, "\r\n"...)
	for _, h := range r.Headers {
		dst = append(dst, h.Key...)
		dst = append(dst, ": "...)
		dst = append(dst, h.Value...)
		dst = append(dst, "\r\n"...)
	}
	dst = append(dst, "\r\n"...)
	return append(dst, r.Body...)
}

// WriteTo serializes into buf without growing it.
func (r *Response) WriteTo(buf []byte) (int, error) {
	if r.Len() > len(buf) {
		return 0, ErrResponseTooLarge
	}
	return len(r.AppendTo(buf[:0])), nil
}

// processWrite builds the response for code into the write buffer and
// prepares the scatter/gather segments.
func (c *Conn) processWrite(code HTTPCode) bool {
	status := code.StatusCode()
	if status == 0 {
		return false
	}

	resp := &c.resp
	resp.Reset()
	resp.Status = status
	if code == FileRequest {
		if c.file != nil {
			resp.File = c.file.Data
		}
	} else {
		resp.Body = errorBody(status)
	}

	resp.SetHeader(HeaderContentLength, strconv.Itoa(resp.ContentLength()))
	resp.SetHeader(HeaderContentType, c.env.contentType())
	if c.req.KeepAlive {
		resp.SetHeader(HeaderConnection, "keep-alive")
	} else {
		resp.SetHeader(HeaderConnection, "close")
	}

	n, err := resp.WriteTo(c.writeBuf[:])
	if err != nil {
		c.env.logger().Error("build response", "fd", c.fd, "status", status, "error", err)
		return false
	}
	c.writeIdx = n
	c.status = status

	c.iv[0] = c.writeBuf[:c.writeIdx]
	c.ivCount = 1
	if len(resp.File) > 0 {
		c.iv[1] = resp.File
		c.ivCount = 2
	}
	c.bytesToSend = c.writeIdx + len(resp.File)
	c.bytesHaveSent = 0
	return true
}
