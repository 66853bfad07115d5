package httpproto

import (
	"bytes"
	"errors"

	"golang.org/x/net/http/httpguts"
)

// ErrInvalidRequest is returned for a malformed request line or header.
var ErrInvalidRequest = errors.New("httpproto: invalid request")

// ErrInvalidResponse is returned for a malformed status line or header.
var ErrInvalidResponse = errors.New("httpproto: invalid response")

// ErrHeaderTooLarge is returned when the header block exceeds the
// configured header_buffer_size without a terminating blank line.
var ErrHeaderTooLarge = errors.New("httpproto: header block too large")

// ErrMissingHost describes an HTTP/1.1 request that carries no (or an
// invalid) Host header, per RFC 7230 §5.4's mandatory Host requirement.
// ParseRequest does not return it; handleServerRequest logs it when it
// answers such a request with 400.
var ErrMissingHost = errors.New("httpproto: missing or invalid Host header")

// headerEnd locates the blank line terminating a header block, trying
// the canonical "\r\n\r\n" first and falling back to a bare "\n\n" for
// the lenient parsing the teacher's own parser performs.
func headerEnd(data []byte) (end int, sepLen int, found bool) {
	if i := bytes.Index(data, []byte("\r\n\r\n")); i != -1 {
		return i, 4, true
	}
	if i := bytes.Index(data, []byte("\n\n")); i != -1 {
		return i, 2, true
	}
	return 0, 0, false
}

// ParseRequest attempts to parse one HTTP/1.x request from the front of
// data. It returns the number of bytes consumed and the parsed request.
// If data does not yet contain a full header block, it returns
// (0, nil, false, nil) so the caller can keep reading into the buffer —
// the engine's non-blocking sockets deliver partial reads, unlike the
// teacher's ParseRequest which assumed data held a complete message.
func ParseRequest(data []byte, maxHeaderSize int) (consumed int, req *Request, ok bool, err error) {
	lineEnd := bytes.IndexByte(data, '\n')
	hEnd, sepLen, found := headerEnd(data)
	if !found {
		if lineEnd == -1 && len(data) > maxHeaderSize {
			return 0, nil, false, ErrHeaderTooLarge
		}
		if len(data) > maxHeaderSize {
			return 0, nil, false, ErrHeaderTooLarge
		}
		return 0, nil, false, nil
	}
	if lineEnd == -1 || lineEnd > hEnd {
		return 0, nil, false, ErrInvalidRequest
	}

	line := data[:lineEnd]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 == -1 {
		return 0, nil, false, ErrInvalidRequest
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 == -1 {
		return 0, nil, false, ErrInvalidRequest
	}
	sp2 += sp1 + 1

	req = AcquireRequest()
	req.Method = string(line[:sp1])
	req.Target = string(line[sp1+1 : sp2])
	req.Path = req.Target
	req.Proto = string(line[sp2+1:])

	if !httpguts.ValidHeaderFieldName(req.Method) {
		ReleaseRequest(req)
		return 0, nil, false, ErrInvalidRequest
	}

	if idx := bytes.IndexByte([]byte(req.Path), '?'); idx != -1 {
		req.Path = parseQuery(req, req.Path, idx)
	}

	headerData := data[lineEnd+1 : hEnd]
	if err := parseHeaders(req, headerData); err != nil {
		ReleaseRequest(req)
		return 0, nil, false, err
	}

	bodyStart := hEnd + sepLen
	if tokenEquals(req.TransferEncoding, "chunked") {
		body, consumed, ok, err := decodeChunkedBody(data[bodyStart:])
		if err != nil {
			ReleaseRequest(req)
			return 0, nil, false, err
		}
		if !ok {
			ReleaseRequest(req)
			return 0, nil, false, nil
		}
		req.Body = append(req.Body[:0], body...)
		return bodyStart + consumed, req, true, nil
	}

	bodyEnd := bodyStart + req.ContentLength
	if len(data) < bodyEnd {
		// Body not fully buffered yet; the caller re-invokes ParseRequest
		// once more bytes have arrived, so the partially-built req is
		// dropped rather than held across calls.
		ReleaseRequest(req)
		return 0, nil, false, nil
	}
	if req.ContentLength > 0 {
		req.Body = append(req.Body[:0], data[bodyStart:bodyEnd]...)
	}

	return bodyEnd, req, true, nil
}

func parseHeaders(req *Request, data []byte) error {
	for len(data) > 0 {
		lineEnd := bytes.IndexByte(data, '\n')
		if lineEnd == -1 {
			lineEnd = len(data)
		}
		line := data[:lineEnd]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if len(line) == 0 {
			break
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return ErrInvalidRequest
		}
		key := string(bytes.TrimSpace(line[:colon]))
		value := string(bytes.TrimSpace(line[colon+1:]))
		if !httpguts.ValidHeaderFieldName(key) {
			return ErrInvalidRequest
		}
		req.SetHeader(key, value)

		if lineEnd == len(data) {
			break
		}
		data = data[lineEnd+1:]
	}
	return nil
}

func parseQuery(req *Request, path string, idx int) string {
	queryStr := path[idx+1:]
	path = path[:idx]
	if req.Query == nil {
		req.Query = make(map[string]string)
	}
	for _, pair := range bytes.Split([]byte(queryStr), []byte("&")) {
		kv := bytes.SplitN(pair, []byte("="), 2)
		if len(kv) == 2 {
			req.Query[string(kv[0])] = string(kv[1])
		} else if len(kv) == 1 && len(kv[0]) > 0 {
			req.Query[string(kv[0])] = ""
		}
	}
	return path
}

// ValidHost reports whether host is a syntactically valid Host header
// value, per RFC 7230 §5.4.
func ValidHost(host string) bool {
	return httpguts.ValidHostHeader(host)
}
