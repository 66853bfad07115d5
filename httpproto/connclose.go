package httpproto

import "strings"

// HTTPVersion identifies the request/response line's declared protocol
// version, restricted to the two the engine understands.
type HTTPVersion int

const (
	HTTPVersionUnknown HTTPVersion = iota
	HTTPVersion10
	HTTPVersion11
)

// ParseHTTPVersion classifies a "HTTP/1.0" / "HTTP/1.1" proto token.
func ParseHTTPVersion(proto string) HTTPVersion {
	switch proto {
	case "HTTP/1.0":
		return HTTPVersion10
	case "HTTP/1.1":
		return HTTPVersion11
	default:
		return HTTPVersionUnknown
	}
}

func tokenEquals(header, token string) bool {
	return strings.EqualFold(strings.TrimSpace(header), token)
}

// ConnectionClose computes whether a connection must close after the
// current request/response exchange, from the declared HTTP version and
// the Connection header value. Grounded verbatim on
// http_server_handler_func::populate_response's policy table: HTTP/1.0
// closes unless the peer explicitly asked to keep the connection alive;
// HTTP/1.1 stays open unless the peer explicitly asked to close; any
// other declared version always closes.
func ConnectionClose(version HTTPVersion, connectionHeader string) bool {
	keepAlive := tokenEquals(connectionHeader, "keep-alive")
	close := tokenEquals(connectionHeader, "close")
	switch version {
	case HTTPVersion10:
		return !keepAlive
	case HTTPVersion11:
		return close
	default:
		return true
	}
}

// ResponseConnectionToken returns the Connection header value a
// response should carry for the given version and close decision,
// mirroring populate_response: HTTP/1.0 only ever emits "keep-alive"
// (and only when the peer asked for it), HTTP/1.1 always states its
// decision explicitly.
func ResponseConnectionToken(version HTTPVersion, connectionClose bool, peerAskedKeepalive bool) (value string, present bool) {
	switch version {
	case HTTPVersion10:
		if peerAskedKeepalive {
			return "keep-alive", true
		}
		return "", false
	case HTTPVersion11:
		if connectionClose {
			return "close", true
		}
		return "keep-alive", true
	default:
		return "", false
	}
}
