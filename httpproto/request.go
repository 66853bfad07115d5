// Package httpproto implements the HTTP/1.x server and client protocol
// state machines that run on top of package engine: request/response
// parsing, the connection-close policy, per-host client pooling, and
// the state/action callback tables registered with package registry.
package httpproto

import "sync"

// Request is a parsed HTTP/1.x request. Like the teacher's core/http
// Request, it is pool-allocated and reused across connections to avoid
// per-request garbage.
type Request struct {
	Method string
	// Target is the request-target exactly as it appeared on the
	// request line (path plus any query string), before parseQuery
	// splits the query out into Path/Query. Handlers that need what
	// the client actually sent — get_request_path()'s role in the
	// original server — read this instead of Path.
	Target string
	Path   string
	Proto  string

	Host             string
	ContentType      string
	ContentLength    int
	TransferEncoding string
	UserAgent        string
	Connection       string

	Headers map[string]string
	Query   map[string]string
	Body    []byte
}

// Reset clears a Request for reuse from the pool.
func (r *Request) Reset() {
	r.Method = ""
	r.Target = ""
	r.Path = ""
	r.Proto = ""
	r.Host = ""
	r.ContentType = ""
	r.ContentLength = 0
	r.TransferEncoding = ""
	r.UserAgent = ""
	r.Connection = ""
	for k := range r.Headers {
		delete(r.Headers, k)
	}
	for k := range r.Query {
		delete(r.Query, k)
	}
	r.Body = r.Body[:0]
}

// SetHeader dispatches well-known headers into dedicated fields (as the
// teacher's parser does, to avoid a map lookup on the hot path for the
// headers every request handler needs) and falls back to the Headers
// map for everything else.
func (r *Request) SetHeader(key, value string) {
	switch key {
	case "Host":
		r.Host = value
	case "Content-Type":
		r.ContentType = value
	case "Content-Length":
		r.ContentLength = atoiLenient(value)
	case "Transfer-Encoding":
		r.TransferEncoding = value
	case "User-Agent":
		r.UserAgent = value
	case "Connection":
		r.Connection = value
	default:
		if r.Headers == nil {
			r.Headers = make(map[string]string)
		}
		r.Headers[key] = value
	}
}

// Header returns a header value by name, checking the dedicated fields
// first and falling back to the extra-headers map.
func (r *Request) Header(key string) string {
	switch key {
	case "Host":
		return r.Host
	case "Content-Type":
		return r.ContentType
	case "Transfer-Encoding":
		return r.TransferEncoding
	case "User-Agent":
		return r.UserAgent
	case "Connection":
		return r.Connection
	default:
		return r.Headers[key]
	}
}

func atoiLenient(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

var requestPool = sync.Pool{
	New: func() any { return &Request{} },
}

// AcquireRequest returns a Request from the pool, ready to populate.
func AcquireRequest() *Request {
	return requestPool.Get().(*Request)
}

// ReleaseRequest resets req and returns it to the pool.
func ReleaseRequest(req *Request) {
	req.Reset()
	requestPool.Put(req)
}
