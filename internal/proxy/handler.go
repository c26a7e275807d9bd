package proxy

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"egress-gate/internal/config"
	"egress-gate/internal/logger"
	"egress-gate/internal/metrics"
)

// defaultHeaderTimeout bounds the wait for a client's request headers.
const defaultHeaderTimeout = 5 * time.Second

// maxHeaderBytes caps the size of the request head read from a client.
const maxHeaderBytes = 64 * 1024

var (
	headTerminator    = []byte("\r\n\r\n")
	errHeaderTooLarge = errors.New("request head too large")
)

// defaultHeaders are inserted into forwarded requests when the client did
// not supply them.
var defaultHeaders = []Header{
	{"Accept", "*/*"},
	{"Accept-Language", "en-US,en;q=0.9"},
	{"Accept-Encoding", "gzip, deflate"},
	{"User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"},
}

// Decider makes access-control decisions for one client/destination pair.
type Decider interface {
	Decide(clientIP, destinationHost string) bool
}

// Dialer opens outbound TCP connections.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Handler processes one accepted client connection end to end: header
// read, request classification, access control, and the forward itself.
type Handler struct {
	cfg    *config.Config
	engine Decider
	dialer Dialer
	client *http.Client
	access *logger.AccessLogger

	// headerTimeout is shortened in tests.
	headerTimeout time.Duration
}

// NewHandler builds a connection handler. The dialer serves CONNECT
// tunnels and the special-host path; plain forwards go through an HTTP
// client built over the same dialer with the configured total timeout.
func NewHandler(cfg *config.Config, engine Decider, dialer Dialer, access *logger.AccessLogger) *Handler {
	client := &http.Client{
		Timeout: cfg.Server.ClientTimeout(),
		Transport: &http.Transport{
			DialContext: dialer.DialContext,
			// One outbound connection per forwarded request, no reuse.
			DisableKeepAlives: true,
			ForceAttemptHTTP2: false,
		},
	}
	return &Handler{
		cfg:           cfg,
		engine:        engine,
		dialer:        dialer,
		client:        client,
		access:        access,
		headerTimeout: defaultHeaderTimeout,
	}
}

// Handle serves one client connection and always closes it. Failures are
// connection-local: they are answered on the wire where possible, logged,
// and never propagated to the caller.
func (h *Handler) Handle(conn net.Conn) {
	requestID := newRequestID()
	start := time.Now()
	clientIP := remoteIP(conn)

	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()
	defer conn.Close()

	outcome := metrics.OutcomeError
	defer func() {
		if r := recover(); r != nil {
			h.access.Error(requestID, logger.Event{RemoteIP: clientIP, Message: fmt.Sprintf("[FATAL] %v", r)})
			outcome = metrics.OutcomeError
		}
		metrics.RecordConnection(outcome, time.Since(start).Seconds())
	}()

	h.access.Info(requestID, logger.Event{RemoteIP: clientIP, Message: "client connected"})

	br := bufio.NewReader(conn)
	head, err := readHead(conn, br, h.headerTimeout)
	if err != nil {
		switch {
		case isTimeout(err):
			rerr := NewRequestError(CodeHeaderReadTimeout, "Timeout reading headers")
			h.access.Warn(requestID, logger.Event{RemoteIP: clientIP, Message: rerr.Message})
			writeRaw(conn, responseFor(rerr.Code))
		case head == "" && errors.Is(err, io.EOF):
			// Client connected and went away without sending anything.
		default:
			h.access.Error(requestID, logger.Event{RemoteIP: clientIP, Message: fmt.Sprintf("Failed to read headers: %v", err)})
			writeRaw(conn, respReadFailure)
		}
		return
	}

	lines := strings.Split(head, "\r\n")
	if strings.HasPrefix(lines[0], "CONNECT") {
		outcome = h.handleConnect(conn, br, lines[0], requestID, clientIP)
		return
	}
	outcome = h.handleHTTP(conn, br, lines, requestID, clientIP, start)
}

// handleConnect serves a CONNECT tunnel request.
func (h *Handler) handleConnect(conn net.Conn, br *bufio.Reader, connectLine, requestID, clientIP string) string {
	fields := strings.Fields(connectLine)
	if len(fields) < 2 {
		return h.fail(conn, requestID, NewRequestError(CodeMalformedRequest, "invalid CONNECT line: %q", connectLine))
	}
	host, port, err := ParseConnectTarget(fields[1])
	if err != nil {
		return h.fail(conn, requestID, asRequestError(err))
	}

	if !h.engine.Decide(clientIP, host) {
		rerr := NewRequestError(CodeAccessDenied, "Access denied (HTTPS) by ACL")
		h.access.Warn(requestID, logger.Event{RemoteIP: clientIP, URL: host, Message: rerr.Message})
		writeRaw(conn, responseFor(rerr.Code))
		return metrics.OutcomeDenied
	}

	h.access.Info(requestID, logger.Event{URL: fmt.Sprintf("https://%s:%d", host, port), Message: "CONNECT tunnel"})

	remote, err := h.dialer.DialContext(context.Background(), "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return h.fail(conn, requestID, WrapRequestError(err, CodeUpstreamConnect, "[HTTPS] CONNECT failed"))
	}

	if _, err := conn.Write(respTunnelEstablished); err != nil {
		remote.Close()
		return h.fail(conn, requestID, WrapRequestError(err, CodeUpstreamConnect, "[HTTPS] CONNECT failed"))
	}

	runTunnel(conn, br, remote)
	return metrics.OutcomeTunnel
}

// handleHTTP serves a plain absolute-URI request: parse, access check,
// body read, then either the special-host raw relay or a forward through
// the HTTP client.
func (h *Handler) handleHTTP(conn net.Conn, br *bufio.Reader, lines []string, requestID, clientIP string, start time.Time) string {
	method, rawTarget, _, err := ParseRequestLine(lines[0])
	if err != nil {
		return h.fail(conn, requestID, asRequestError(err))
	}

	// The final two lines are the blank separator and the trailing empty
	// string left by the split.
	headers := ParseHeaders(lines[1 : len(lines)-2])

	tgt, err := ParseTarget(rawTarget)
	if err != nil {
		return h.fail(conn, requestID, asRequestError(err))
	}

	if !h.engine.Decide(clientIP, tgt.Host) {
		rerr := NewRequestError(CodeAccessDenied, "Access denied by ACL")
		h.access.Warn(requestID, logger.Event{RemoteIP: clientIP, URL: tgt.Host, Message: rerr.Message})
		writeRaw(conn, responseFor(rerr.Code))
		return metrics.OutcomeDenied
	}

	var body []byte
	if cl, ok := headers.Get("Content-Length"); ok {
		length, err := strconv.Atoi(cl)
		switch {
		case err != nil || length < 0:
			h.access.Warn(requestID, logger.Event{Message: fmt.Sprintf("Failed to read body: invalid Content-Length %q", cl)})
		case length > h.cfg.Limits.MaxBodyBytes():
			rerr := NewRequestError(CodeBodyTooLarge, "Request body too large")
			h.access.Warn(requestID, logger.Event{Message: rerr.Message})
			writeRaw(conn, responseFor(rerr.Code))
			return metrics.OutcomeError
		default:
			body = make([]byte, length)
			if _, err := io.ReadFull(br, body); err != nil {
				h.access.Warn(requestID, logger.Event{Message: fmt.Sprintf("Failed to read body: %v", err)})
				body = nil
			}
		}
	}

	if h.cfg.LogFields.Body {
		h.access.Info(requestID, logger.Event{Body: string(body), Message: "request body"})
	}
	if h.cfg.LogFields.Headers {
		h.access.Info(requestID, logger.Event{Headers: headers.Format(), Message: "request headers"})
	}

	if h.cfg.IsSpecialHost(tgt.Host) {
		return h.handleSpecial(conn, method, rawTarget, headers, body, tgt, requestID)
	}

	if h.cfg.LogFields.DurationMS {
		h.access.Info(requestID, logger.Event{Duration: time.Since(start), Message: "request parsed"})
	}

	return h.forward(conn, method, headers, body, tgt, requestID)
}

// forward sends the request through the HTTP client and relays the
// response with a forced Connection: close.
func (h *Handler) forward(conn net.Conn, method string, headers *Headers, body []byte, tgt Target, requestID string) string {
	outURL := rebuildURL(tgt, hostHeaderPort(headers))

	headers.Set("Connection", "close")
	for _, d := range defaultHeaders {
		if !headers.Has(d.Name) {
			headers.Set(d.Name, d.Value)
		}
	}

	req, err := http.NewRequest(method, outURL, bytes.NewReader(body))
	if err != nil {
		return h.fail(conn, requestID, WrapRequestError(err, CodeUpstreamRequest, "[FORWARD ERROR]"))
	}
	for _, it := range headers.Items() {
		// The Host header travels on the request itself, not the map.
		if it.Name == "Host" {
			req.Host = it.Value
			continue
		}
		req.Header.Set(it.Name, it.Value)
	}
	req.Close = true

	resp, err := h.client.Do(req)
	if err != nil {
		return h.fail(conn, requestID, WrapRequestError(err, CodeUpstreamRequest, "[FORWARD ERROR]"))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return h.fail(conn, requestID, WrapRequestError(err, CodeUpstreamRequest, "[FORWARD ERROR]"))
	}

	var out bytes.Buffer
	out.WriteString("HTTP/1.1 " + resp.Status + "\r\n")
	for _, k := range sortedKeys(resp.Header) {
		for _, v := range resp.Header[k] {
			out.WriteString(k + ": " + v + "\r\n")
		}
	}
	out.WriteString("Connection: close\r\n\r\n")
	out.Write(respBody)

	if _, err := conn.Write(out.Bytes()); err != nil {
		// No 502 here: the response bytes may already be partially written.
		rerr := WrapRequestError(err, CodeUpstreamRequest, "[FORWARD ERROR]")
		h.access.Error(requestID, logger.Event{Message: rerr.Error()})
		return metrics.OutcomeError
	}

	if h.cfg.LogFields.ResponseHeaders {
		h.access.Info(requestID, logger.Event{ResponseHeaders: formatHTTPHeader(resp.Header), Message: "response headers"})
	}
	if h.cfg.LogFields.ResponseBody {
		h.access.Info(requestID, logger.Event{ResponseBody: string(respBody), Message: "response body"})
	}
	return metrics.OutcomeForward
}

// fail logs a classified failure and answers the client with the canned
// response its code maps to.
func (h *Handler) fail(conn net.Conn, requestID string, rerr *RequestError) string {
	h.access.Error(requestID, logger.Event{Message: rerr.Error()})
	writeRaw(conn, responseFor(rerr.Code))
	return metrics.OutcomeError
}

// asRequestError recovers err's classification, treating anything
// unclassified as a malformed request.
func asRequestError(err error) *RequestError {
	var rerr *RequestError
	if errors.As(err, &rerr) {
		return rerr
	}
	return WrapRequestError(err, CodeMalformedRequest, "invalid request")
}

// rebuildURL assembles the outbound URL. The target's own port is only
// used when the Host header carries an explicit override; otherwise the
// origin's default applies.
func rebuildURL(tgt Target, portOverride int) string {
	var b strings.Builder
	b.WriteString("http://")
	b.WriteString(tgt.Host)
	if portOverride > 0 {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(portOverride))
	}
	b.WriteString(tgt.Path)
	if tgt.Query != "" {
		b.WriteString("?")
		b.WriteString(tgt.Query)
	}
	return b.String()
}

// hostHeaderPort extracts an explicit port from the Host header, or 0 when
// there is none or it does not parse.
func hostHeaderPort(headers *Headers) int {
	hostHeader, ok := headers.Get("Host")
	if !ok || !strings.Contains(hostHeader, ":") {
		return 0
	}
	_, portStr, _ := strings.Cut(hostHeader, ":")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

// readHead reads from the client until the header-terminating blank line,
// bounded by the header timeout. The returned string includes the
// terminator. The read deadline is cleared before returning so body reads
// and tunnels are not bounded by it.
func readHead(conn net.Conn, br *bufio.Reader, timeout time.Duration) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	var buf []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return string(buf), err
		}
		buf = append(buf, b)
		if bytes.HasSuffix(buf, headTerminator) {
			return string(buf), nil
		}
		if len(buf) > maxHeaderBytes {
			return string(buf), errHeaderTooLarge
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// newRequestID returns the short hex connection identifier used for log
// correlation.
func newRequestID() string {
	return uuid.New().String()[:8]
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
