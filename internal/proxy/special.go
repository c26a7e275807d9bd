package proxy

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"egress-gate/internal/logger"
	"egress-gate/internal/metrics"
)

// handleSpecial forwards a request to a special host over a raw TCP
// connection and relays the response bytes to the client unparsed, in
// configured-size chunks. The generic HTTP client is bypassed so the
// origin's exact response framing reaches the client untouched.
func (h *Handler) handleSpecial(conn net.Conn, method, rawTarget string, headers *Headers, body []byte, tgt Target, requestID string) string {
	start := time.Now()

	port := tgt.Port
	if override := hostHeaderPort(headers); override > 0 {
		port = override
	}

	h.access.Info(requestID, logger.Event{Method: method, URL: rawTarget, Message: "special host forward"})
	if h.cfg.LogFields.Headers {
		h.access.Info(requestID, logger.Event{Headers: headers.Format(), Message: "request headers"})
	}
	if h.cfg.LogFields.Body && len(body) > 0 {
		h.access.Info(requestID, logger.Event{Body: string(body), Message: "request body"})
	}

	remote, err := h.dialer.DialContext(context.Background(), "tcp", net.JoinHostPort(tgt.Host, strconv.Itoa(port)))
	if err != nil {
		return h.fail(conn, requestID, WrapRequestError(err, CodeUpstreamConnect, "[SPECIAL HOST ERROR]"))
	}
	defer remote.Close()

	if _, err := remote.Write(serializeRaw(method, rawTarget, headers, body)); err != nil {
		return h.fail(conn, requestID, WrapRequestError(err, CodeUpstreamRequest, "[SPECIAL HOST ERROR]"))
	}

	// Captured only when the response_body log field is on.
	var captured bytes.Buffer
	capture := h.cfg.LogFields.ResponseBody

	buf := make([]byte, h.cfg.Server.BufferSize)
	for {
		n, err := remote.Read(buf)
		if n > 0 {
			if capture {
				captured.Write(buf[:n])
			}
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return h.fail(conn, requestID, WrapRequestError(werr, CodeUpstreamRequest, "[SPECIAL HOST ERROR]"))
			}
		}
		if err != nil {
			if err != io.EOF {
				return h.fail(conn, requestID, WrapRequestError(err, CodeUpstreamRequest, "[SPECIAL HOST ERROR]"))
			}
			break
		}
	}

	if capture && captured.Len() > 0 {
		h.access.Info(requestID, logger.Event{ResponseBody: captured.String(), Message: "response body"})
	}
	if h.cfg.LogFields.DurationMS {
		h.access.Info(requestID, logger.Event{Duration: time.Since(start), Message: "special host forward complete"})
	}
	return metrics.OutcomeSpecial
}

// serializeRaw rebuilds the request bytes for the raw relay: the original
// method and target as received, a forced Connection: close, every header
// except any client-sent Connection, then the body.
func serializeRaw(method, rawTarget string, headers *Headers, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString(method + " " + rawTarget + " HTTP/1.1\r\n")
	b.WriteString("Connection: close\r\n")
	for _, it := range headers.Items() {
		if strings.EqualFold(it.Name, "Connection") {
			continue
		}
		b.WriteString(it.Name + ": " + it.Value + "\r\n")
	}
	b.WriteString("\r\n")
	b.Write(body)
	return b.Bytes()
}
