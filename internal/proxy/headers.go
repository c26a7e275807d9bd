package proxy

import (
	"net/http"
	"sort"
	"strings"
)

// Header is one name/value pair.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header collection. Names are case-sensitive as
// received; setting an existing name replaces its value in place, keeping
// the original position.
type Headers struct {
	items []Header
	index map[string]int
}

// NewHeaders returns an empty header collection.
func NewHeaders() *Headers {
	return &Headers{index: make(map[string]int)}
}

// Get returns the value for an exact-case name.
func (h *Headers) Get(name string) (string, bool) {
	i, ok := h.index[name]
	if !ok {
		return "", false
	}
	return h.items[i].Value, true
}

// Has reports whether an exact-case name is present.
func (h *Headers) Has(name string) bool {
	_, ok := h.index[name]
	return ok
}

// Set adds a header or replaces the value of an existing exact-case name.
func (h *Headers) Set(name, value string) {
	if i, ok := h.index[name]; ok {
		h.items[i].Value = value
		return
	}
	h.index[name] = len(h.items)
	h.items = append(h.items, Header{Name: name, Value: value})
}

// Len returns the number of headers.
func (h *Headers) Len() int {
	return len(h.items)
}

// Items returns the headers in insertion order. The returned slice is the
// internal one; callers must not modify it.
func (h *Headers) Items() []Header {
	return h.items
}

// Format renders the headers as "Name: Value" pairs joined by "; " for
// access log fields.
func (h *Headers) Format() string {
	var b strings.Builder
	for i, it := range h.items {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(it.Name)
		b.WriteString(": ")
		b.WriteString(it.Value)
	}
	return b.String()
}

// formatHTTPHeader renders a net/http header map the same way, sorted by
// name so the output is stable.
func formatHTTPHeader(hdr http.Header) string {
	var b strings.Builder
	for _, k := range sortedKeys(hdr) {
		for _, v := range hdr[k] {
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
		}
	}
	return b.String()
}

func sortedKeys(hdr http.Header) []string {
	keys := make([]string, 0, len(hdr))
	for k := range hdr {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
