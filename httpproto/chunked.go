package httpproto

import (
	"bytes"
	"errors"
	"strconv"
)

// ErrInvalidChunk is returned for a malformed chunk-size line or a
// chunk whose declared size cannot be parsed as hex.
var ErrInvalidChunk = errors.New("httpproto: invalid chunked body")

// decodeChunkedBody decodes a chunked-transfer-encoded body from the
// front of data (data starts immediately after the header block's
// terminating blank line, per RFC 7230 §4.1). It returns the decoded
// body, the number of raw bytes consumed through the trailer section's
// terminating CRLF, and false if data does not yet hold a complete
// chunked body — the caller re-invokes it once more bytes have
// arrived, mirroring ParseRequest/ParseResponse's incremental contract.
func decodeChunkedBody(data []byte) (body []byte, consumed int, ok bool, err error) {
	pos := 0
	for {
		lineEnd := bytes.IndexByte(data[pos:], '\n')
		if lineEnd == -1 {
			return nil, 0, false, nil
		}
		lineEnd += pos

		sizeLine := data[pos:lineEnd]
		if len(sizeLine) > 0 && sizeLine[len(sizeLine)-1] == '\r' {
			sizeLine = sizeLine[:len(sizeLine)-1]
		}
		if semi := bytes.IndexByte(sizeLine, ';'); semi != -1 {
			sizeLine = sizeLine[:semi]
		}
		size, perr := strconv.ParseInt(string(bytes.TrimSpace(sizeLine)), 16, 64)
		if perr != nil || size < 0 {
			return nil, 0, false, ErrInvalidChunk
		}

		chunkStart := lineEnd + 1
		if size == 0 {
			if len(data) >= chunkStart+2 && data[chunkStart] == '\r' && data[chunkStart+1] == '\n' {
				return body, chunkStart + 2, true, nil
			}
			trailerEnd, sepLen, found := headerEnd(data[chunkStart:])
			if found {
				return body, chunkStart + trailerEnd + sepLen, true, nil
			}
			return nil, 0, false, nil
		}

		chunkEnd := chunkStart + int(size)
		if len(data) < chunkEnd+2 {
			return nil, 0, false, nil
		}
		body = append(body, data[chunkStart:chunkEnd]...)
		pos = chunkEnd + 2
	}
}
