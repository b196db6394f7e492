package http

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/searchktools/edge-httpd/core/resource"
)

// processRead runs the main state machine over the unparsed part of the
// read buffer. It keeps consuming complete lines until one is incomplete
// or a terminal outcome is reached.
func (c *Conn) processRead() HTTPCode {
	for {
		if c.state == StateContent {
			if c.parseContent() == GetRequest {
				return c.doRequest()
			}
			return NoRequest
		}

		switch c.parseLine() {
		case LineOpen:
			return NoRequest
		case LineBad:
			return c.malformed()
		}

		text := c.getLine()
		c.startLine = c.checkedIdx

		switch c.state {
		case StateRequestLine:
			if c.parseRequestLine(text) == BadRequest {
				return c.malformed()
			}
		case StateHeader:
			switch c.parseHeader(text) {
			case BadRequest:
				return c.malformed()
			case GetRequest:
				return c.doRequest()
			}
		default:
			return InternalError
		}
	}
}

// malformed reports a protocol violation. Framing can no longer be
// trusted, so the connection is closed after the 400 is sent.
func (c *Conn) malformed() HTTPCode {
	c.req.KeepAlive = false
	return BadRequest
}

// parseLine scans for the next CRLF. Terminators are overwritten with
// zero bytes; checkedIdx is left past them on success and on the CR when
// the CR is the last byte read so far.
func (c *Conn) parseLine() LineStatus {
	for ; c.checkedIdx < c.readIdx; c.checkedIdx++ {
		switch c.readBuf[c.checkedIdx] {
		case '\r':
			if c.checkedIdx+1 == c.readIdx {
				return LineOpen
			}
			if c.readBuf[c.checkedIdx+1] == '\n' {
				c.readBuf[c.checkedIdx] = 0
				c.readBuf[c.checkedIdx+1] = 0
				c.checkedIdx += 2
				return LineOK
			}
			return LineBad
		case '\n':
			if c.checkedIdx > 1 && c.readBuf[c.checkedIdx-1] == '\r' {
				c.readBuf[c.checkedIdx-1] = 0
				c.readBuf[c.checkedIdx] = 0
				c.checkedIdx++
				return LineOK
			}
			return LineBad
		}
	}
	return LineOpen
}

// getLine returns the line just completed by parseLine, terminators
// excluded.
func (c *Conn) getLine() []byte {
	return c.readBuf[c.startLine : c.checkedIdx-2]
}

// parseRequestLine parses "GET <url> HTTP/1.1".
func (c *Conn) parseRequestLine(text []byte) HTTPCode {
	method, rest, ok := cutSpace(text)
	if !ok || !bytes.EqualFold(method, []byte("GET")) {
		return BadRequest
	}

	url, version, ok := cutSpace(rest)
	if !ok || !bytes.EqualFold(version, []byte("HTTP/1.1")) {
		return BadRequest
	}

	// absolute form: http://host[:port]/path
	if len(url) >= 7 && bytes.EqualFold(url[:7], []byte("http://")) {
		url = url[7:]
		i := bytes.IndexByte(url, '/')
		if i < 0 {
			return BadRequest
		}
		url = url[i:]
	}
	if len(url) == 0 || url[0] != '/' {
		return BadRequest
	}

	c.req.Method = "GET"
	c.req.URL = string(url)
	c.req.Proto = "HTTP/1.1"
	c.state = StateHeader
	return NoRequest
}

// parseHeader handles one header line; the blank line ends the header
// block.
func (c *Conn) parseHeader(text []byte) HTTPCode {
	if len(text) == 0 {
		if c.req.ContentLength != 0 {
			c.state = StateContent
			return NoRequest
		}
		return GetRequest
	}

	// lines that are not a valid "name: value" pair are skipped like any
	// other unrecognized header
	colon := bytes.IndexByte(text, ':')
	if colon <= 0 {
		return NoRequest
	}
	name := string(text[:colon])
	if !httpguts.ValidHeaderFieldName(name) {
		return NoRequest
	}
	value := bytes.Trim(text[colon+1:], " \t")

	switch {
	case strings.EqualFold(name, HeaderConnection):
		c.req.KeepAlive = bytes.EqualFold(value, []byte("keep-alive"))
	case strings.EqualFold(name, HeaderContentLength):
		n, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil || n < 0 {
			return BadRequest
		}
		// a body that can never fit the read buffer is refused up front
		if n > int64(ReadBufferSize-c.checkedIdx) {
			return BadRequest
		}
		c.req.ContentLength = n
	case strings.EqualFold(name, HeaderHost):
		c.req.Host = string(value)
	}

	return NoRequest
}

// parseContent waits for ContentLength bytes past the header block. The
// body is not interpreted.
func (c *Conn) parseContent() HTTPCode {
	end := c.checkedIdx + int(c.req.ContentLength)
	if c.readIdx < end {
		return NoRequest
	}
	c.req.Body = c.readBuf[c.checkedIdx:end]
	c.checkedIdx = end
	c.startLine = end
	return GetRequest
}

// doRequest resolves the parsed URL against the document root.
func (c *Conn) doRequest() HTTPCode {
	f, err := c.env.Resolver.Resolve(c.req.URL)
	switch {
	case err == nil:
		c.file = f
		return FileRequest
	case errors.Is(err, resource.ErrNotFound):
		return NoResource
	case errors.Is(err, resource.ErrForbidden):
		return ForbiddenRequest
	case errors.Is(err, resource.ErrIsDirectory),
		errors.Is(err, resource.ErrPathTooLong),
		errors.Is(err, resource.ErrTraversal),
		errors.Is(err, resource.ErrAccess):
		c.env.logger().Debug("resource rejected", "url", c.req.URL, "error", err)
		return BadRequest
	}
	c.env.logger().Error("resolve failed", "url", c.req.URL, "error", err)
	return InternalError
}

// cutSpace splits s around the first run of spaces or tabs.
func cutSpace(s []byte) (before, after []byte, found bool) {
	i := bytes.IndexAny(s, " \t")
	if i < 0 {
		return s, nil, false
	}
	j := i
	for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
		j++
	}
	return s[:i], s[j:], true
}
