package httpproto

// ServerHandler is the capability a route handler must implement to
// serve requests: handle_request/populate_response/write_response_body
// from the state machine's perspective. The state machine calls only
// the methods appropriate to the connection's current state, never the
// client-side ones.
type ServerHandler interface {
	// Init resets any per-request state the handler keeps, called when a
	// connection slot is reused for a new request.
	Init()

	// HandleRequest is invoked once the full request has been parsed. It
	// returns the status code to report; the handler keeps whatever it
	// needs for the mime type and body itself, and hands them over later
	// through PopulateResponse and WriteResponseBody.
	HandleRequest(req *Request) (statusCode int, err error)

	// PopulateResponse fills in response headers once HandleRequest has
	// decided the status code, given the computed connection_close flag
	// for this version/header pair.
	PopulateResponse(req *Request, resp *Response, connectionClose bool)

	// WriteResponseBody copies up to len(buf) bytes of the response body
	// into buf, returning 0 to signal end-of-body, matching the
	// handler's "return bytes=0" end signal.
	WriteResponseBody(buf []byte) (n int, err error)
}

// ClientHandler is the capability a request originator must implement:
// populate_request/write_request_body/read_response_body/handle_response.
type ClientHandler interface {
	// PopulateRequest fills in the outbound request before it is sent.
	PopulateRequest(req *Request)

	// WriteRequestBody copies up to len(buf) bytes of the request body
	// into buf, returning 0 to signal end-of-body.
	WriteRequestBody(buf []byte) (n int, err error)

	// ReadResponseBody consumes the response body. The client buffers the
	// whole body and passes it in a single call.
	ReadResponseBody(buf []byte) error

	// HandleResponse is invoked once the response (including body) has
	// been fully received.
	HandleResponse(resp *Response) error

	// EndRequest is invoked when the request/response exchange is
	// complete or has failed; err is non-nil on abort.
	EndRequest(err error)
}

// ServerHandlerFactory produces a fresh ServerHandler for one
// connection's use. Route registration stores a factory, not a shared
// handler instance, because a handler carries per-request state
// (a staged body, a file offset) and the same route is driven
// concurrently by every processor thread.
type ServerHandlerFactory func() ServerHandler

// HandlerFunc adapts a plain function returning a body string into a
// ServerHandler, mirroring the original engine's http_server_function
// callback shape (fn(conn) -> body) for simple routes like echo that
// need no request body and no streaming.
type HandlerFunc func(req *Request) (status int, mimeType string, body []byte, err error)

type funcHandler struct {
	fn       HandlerFunc
	body     []byte
	offset   int
	mimeType string
}

// NewHandlerFunc wraps fn as a ServerHandlerFactory.
func NewHandlerFunc(fn HandlerFunc) ServerHandlerFactory {
	return func() ServerHandler {
		return &funcHandler{fn: fn}
	}
}

func (h *funcHandler) Init() {
	h.body = nil
	h.offset = 0
	h.mimeType = ""
}

func (h *funcHandler) HandleRequest(req *Request) (int, error) {
	status, mimeType, body, err := h.fn(req)
	if err != nil {
		return status, err
	}
	h.body = body
	h.mimeType = mimeType
	return status, nil
}

func (h *funcHandler) PopulateResponse(req *Request, resp *Response, connectionClose bool) {
	resp.ContentType = h.mimeType
	resp.ContentLength = len(h.body)
}

func (h *funcHandler) WriteResponseBody(buf []byte) (int, error) {
	if h.offset >= len(h.body) {
		return 0, nil
	}
	n := copy(buf, h.body[h.offset:])
	h.offset += n
	return n, nil
}
