package httpproto

import "bytes"

// ParseResponse attempts to parse one HTTP/1.x response from the front
// of data, mirroring ParseRequest's incremental-read contract: it
// returns (0, nil, false, nil) until a full header block (and, once
// Content-Length is known, a full body) has arrived.
func ParseResponse(data []byte, maxHeaderSize int) (consumed int, resp *Response, ok bool, err error) {
	lineEnd := bytes.IndexByte(data, '\n')
	hEnd, sepLen, found := headerEnd(data)
	if !found {
		if len(data) > maxHeaderSize {
			return 0, nil, false, ErrHeaderTooLarge
		}
		return 0, nil, false, nil
	}
	if lineEnd == -1 || lineEnd > hEnd {
		return 0, nil, false, ErrInvalidResponse
	}

	line := data[:lineEnd]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 == -1 {
		return 0, nil, false, ErrInvalidResponse
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	var statusField, reason []byte
	if sp2 == -1 {
		statusField = rest
	} else {
		statusField = rest[:sp2]
		reason = rest[sp2+1:]
	}

	status := atoiLenient(string(statusField))
	if status < 100 || status > 599 {
		return 0, nil, false, ErrInvalidResponse
	}

	resp = AcquireResponse()
	resp.StatusCode = status
	resp.Reason = string(reason)

	headerData := data[lineEnd+1 : hEnd]
	if err := parseResponseHeaders(resp, headerData); err != nil {
		ReleaseResponse(resp)
		return 0, nil, false, err
	}

	bodyStart := hEnd + sepLen
	if tokenEquals(resp.TransferEncoding, "chunked") {
		body, chunkConsumed, chunkOK, cerr := decodeChunkedBody(data[bodyStart:])
		if cerr != nil {
			ReleaseResponse(resp)
			return 0, nil, false, cerr
		}
		if !chunkOK {
			ReleaseResponse(resp)
			return 0, nil, false, nil
		}
		resp.Body = append(resp.Body[:0], body...)
		resp.ContentLength = len(body)
		return bodyStart + chunkConsumed, resp, true, nil
	}

	bodyEnd := bodyStart + resp.ContentLength
	if len(data) < bodyEnd {
		ReleaseResponse(resp)
		return 0, nil, false, nil
	}
	if resp.ContentLength > 0 {
		resp.Body = append(resp.Body[:0], data[bodyStart:bodyEnd]...)
	}

	return bodyEnd, resp, true, nil
}

func parseResponseHeaders(resp *Response, data []byte) error {
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
			return ErrInvalidResponse
		}
		key := string(bytes.TrimSpace(line[:colon]))
		value := string(bytes.TrimSpace(line[colon+1:]))
		switch key {
		case "Content-Length":
			resp.ContentLength = atoiLenient(value)
		default:
			resp.SetHeader(key, value)
		}

		if lineEnd == len(data) {
			break
		}
		data = data[lineEnd+1:]
	}
	return nil
}
