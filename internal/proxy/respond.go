package proxy

import "net"

// Canned wire responses. The exact byte sequences are part of the proxy's
// observable contract and must not be reformatted.
var (
	respRequestTimeout    = []byte("HTTP/1.1 408 Request Timeout\r\nContent-Length: 0\r\n\r\n")
	respReadFailure       = []byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n")
	respBadRequest        = []byte("HTTP/1.1 400 Bad Request\r\n\r\n")
	respForbidden         = []byte("HTTP/1.1 403 Forbidden\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")
	respBodyTooLarge      = []byte("HTTP/1.1 413 Request Entity Too Large\r\n\r\n")
	respBadGateway        = []byte("HTTP/1.1 502 Bad Gateway\r\n\r\n")
	respTunnelEstablished = []byte("HTTP/1.1 200 Connection established\r\n\r\n")
)

// writeRaw writes a canned response. Write errors are ignored; the
// connection is closed right after.
func writeRaw(conn net.Conn, resp []byte) {
	_, _ = conn.Write(resp)
}

// responseFor maps a classified failure to its canned wire response.
func responseFor(code ErrorCode) []byte {
	switch code {
	case CodeHeaderReadTimeout:
		return respRequestTimeout
	case CodeAccessDenied:
		return respForbidden
	case CodeBodyTooLarge:
		return respBodyTooLarge
	case CodeUpstreamConnect, CodeUpstreamRequest:
		return respBadGateway
	default:
		return respBadRequest
	}
}
