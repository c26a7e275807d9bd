package proxy

import (
	"net/url"
	"strconv"
	"strings"
)

// Target is the decomposed destination of a non-CONNECT request.
type Target struct {
	Host  string
	Port  int
	Path  string
	Query string
}

// ParseRequestLine splits the first request line into its three tokens.
func ParseRequestLine(line string) (method, target, proto string, err error) {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return "", "", "", NewRequestError(CodeMalformedRequest, "invalid request line: %q", line)
	}
	return parts[0], parts[1], parts[2], nil
}

// ParseHeaders builds the ordered header collection from the raw header
// lines. Lines without a colon are dropped; names and values are trimmed.
// Duplicate names keep their first position with the last value.
func ParseHeaders(lines []string) *Headers {
	headers := NewHeaders()
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return headers
}

// ParseTarget decomposes an absolute-URI request target. The hostname is
// lowercased, the port defaults to 80 and the path to "/". The scheme is
// not inspected; forwarding is always plain HTTP.
func ParseTarget(rawURL string) (Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, NewRequestError(CodeMalformedRequest, "invalid request target: %q", rawURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Target{}, NewRequestError(CodeMalformedRequest, "request target has no host: %q", rawURL)
	}

	port := 80
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Target{}, NewRequestError(CodeMalformedRequest, "invalid port in request target: %q", rawURL)
		}
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return Target{Host: host, Port: port, Path: path, Query: u.RawQuery}, nil
}

// ParseConnectTarget splits a CONNECT request target into host and port.
// The target must be exactly host:port with a port in [1, 65535].
func ParseConnectTarget(target string) (string, int, error) {
	parts := strings.Split(target, ":")
	if len(parts) != 2 || parts[0] == "" {
		return "", 0, NewRequestError(CodeMalformedRequest, "invalid CONNECT target: %q", target)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return "", 0, NewRequestError(CodeMalformedRequest, "invalid CONNECT port: %q", target)
	}
	return parts[0], port, nil
}
