package http

// Request holds the fields parsed from one HTTP/1.1 request
type Request struct {
	Method string
	URL    string
	Proto  string

	// Predefined header fields
	Host          string
	KeepAlive     bool
	ContentLength int64

	// Body aliases the connection's read buffer and is only valid until
	// the connection is reset.
	Body []byte
}

// Reset resets the request for reuse
func (r *Request) Reset() {
	r.Method = ""
	r.URL = ""
	r.Proto = ""
	r.Host = ""
	r.KeepAlive = false
	r.ContentLength = 0
	r.Body = nil
}
