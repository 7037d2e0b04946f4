package observability

import (
	"net"
	"net/http"
	"strings"
)

// Request headers propagated into call events and websocket connection
// metadata.
const (
	headerDeviceID  = "X-Device-Id"
	headerRequestID = "X-Request-Id"
)

// DeviceIDFromRequest returns the client device identifier, empty when
// the client sent none.
func DeviceIDFromRequest(r *http.Request) string {
	return r.Header.Get(headerDeviceID)
}

// RequestIDFromRequest returns the request correlation id, empty when
// the client sent none.
func RequestIDFromRequest(r *http.Request) string {
	return r.Header.Get(headerRequestID)
}

// IPFromRequest resolves the client address, preferring the first hop of
// X-Forwarded-For over the socket peer.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
