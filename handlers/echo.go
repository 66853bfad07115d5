// Package handlers supplies the two canned request handlers
// SPEC_FULL.md calls out as external collaborators the spec only names,
// not designs: an echo handler and a static file handler. Both
// implement httpproto.ServerHandler.
package handlers

import "github.com/fast01/latypus/httpproto"

// NewEcho returns a ServerHandlerFactory that reports the request
// target back to the caller, grounded on echo_fn::operator() in the
// original server: "echo " + get_request_path().
func NewEcho() httpproto.ServerHandlerFactory {
	return httpproto.NewHandlerFunc(func(req *httpproto.Request) (int, string, []byte, error) {
		return 200, "text/plain", []byte("echo " + req.Target), nil
	})
}
