package http

// CheckState is the phase of the main parse state machine
type CheckState int

const (
	StateRequestLine CheckState = iota
	StateHeader
	StateContent
)

// LineStatus is the result of scanning for one CRLF-terminated line
type LineStatus int

const (
	LineOK LineStatus = iota
	LineBad
	LineOpen
)

func (s LineStatus) String() string {
	switch s {
	case LineOK:
		return "ok"
	case LineBad:
		return "bad"
	case LineOpen:
		return "open"
	}
	return "unknown"
}

// HTTPCode is the outcome of parsing and resolving a request
type HTTPCode int

const (
	// NoRequest means the request is incomplete; more bytes are needed.
	NoRequest HTTPCode = iota
	// GetRequest means a complete request was parsed and awaits resolution.
	GetRequest
	BadRequest
	NoResource
	ForbiddenRequest
	FileRequest
	InternalError
)

func (c HTTPCode) String() string {
	switch c {
	case NoRequest:
		return "no-request"
	case GetRequest:
		return "get-request"
	case BadRequest:
		return "bad-request"
	case NoResource:
		return "no-resource"
	case ForbiddenRequest:
		return "forbidden"
	case FileRequest:
		return "file"
	case InternalError:
		return "internal-error"
	}
	return "unknown"
}

// StatusCode maps a terminal outcome to its HTTP status, 0 for
// non-terminal outcomes.
func (c HTTPCode) StatusCode() int {
	switch c {
	case FileRequest:
		return 200
	case BadRequest:
		return 400
	case ForbiddenRequest:
		return 403
	case NoResource:
		return 404
	case InternalError:
		return 500
	}
	return 0
}

// StatusText returns the reason phrase for the status codes this server
// produces.
func StatusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Error"
	}
	return ""
}

// error bodies
const (
	error400Form = "Your request has bad syntax or is inherently impossible to satisfy.\n"
	error403Form = "You do not have permission to get file from this server.\n"
	error404Form = "The requested file was not found on this server.\n"
	error500Form = "There was an unusual problem serving the requested file.\n"
)

func errorBody(code int) string {
	switch code {
	case 400:
		return error400Form
	case 403:
		return error403Form
	case 404:
		return error404Form
	}
	return error500Form
}
