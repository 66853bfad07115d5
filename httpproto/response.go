package httpproto

import "sync"

// Response is an HTTP/1.x response under construction, mirroring the
// teacher's predefined-field approach to Request: a fixed set of
// commonly-set headers plus an overflow map for the rest.
type Response struct {
	StatusCode int
	Reason     string

	ContentType      string
	ContentLength    int
	TransferEncoding string
	Connection       string

	Headers map[string]string
	Body    []byte
}

// Reset clears a Response for reuse from the pool.
func (r *Response) Reset() {
	r.StatusCode = 0
	r.Reason = ""
	r.ContentType = ""
	r.ContentLength = 0
	r.TransferEncoding = ""
	r.Connection = ""
	for k := range r.Headers {
		delete(r.Headers, k)
	}
	r.Body = r.Body[:0]
}

// SetHeader sets an arbitrary response header.
func (r *Response) SetHeader(key, value string) {
	switch key {
	case "Content-Type":
		r.ContentType = value
	case "Transfer-Encoding":
		r.TransferEncoding = value
	case "Connection":
		r.Connection = value
	default:
		if r.Headers == nil {
			r.Headers = make(map[string]string)
		}
		r.Headers[key] = value
	}
}

var responsePool = sync.Pool{
	New: func() any { return &Response{} },
}

// AcquireResponse returns a Response from the pool.
func AcquireResponse() *Response {
	return responsePool.Get().(*Response)
}

// ReleaseResponse resets resp and returns it to the pool.
func ReleaseResponse(resp *Response) {
	resp.Reset()
	responsePool.Put(resp)
}

// StatusText returns the reason phrase for a well-known status code,
// grounded on http_constants::get_status_text in the original server.
func StatusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 204:
		return "No Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 408:
		return "Request Timeout"
	case 413:
		return "Payload Too Large"
	case 431:
		return "Request Header Fields Too Large"
	case 500:
		return "Internal Server Error"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	case 504:
		return "Gateway Timeout"
	default:
		return "Unknown"
	}
}
