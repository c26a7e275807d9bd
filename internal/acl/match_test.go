package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchHostname(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		patterns []string
		want     bool
	}{
		{
			name:     "wildcard subdomain",
			hostname: "sub.example.com",
			patterns: []string{"*.example.com"},
			want:     true,
		},
		{
			name:     "bare suffix matches wildcard pattern",
			hostname: "example.com",
			patterns: []string{"*.example.com"},
			want:     true,
		},
		{
			name:     "unrelated host",
			hostname: "other.com",
			patterns: []string{"*.example.com"},
			want:     false,
		},
		{
			name:     "exact literal",
			hostname: "app.corp.local",
			patterns: []string{"app.corp.local"},
			want:     true,
		},
		{
			name:     "question mark wildcard",
			hostname: "host1.corp.local",
			patterns: []string{"host?.corp.local"},
			want:     true,
		},
		{
			name:     "leading star without dot",
			hostname: "example.com",
			patterns: []string{"*example.com"},
			want:     true,
		},
		{
			name:     "deep subdomain crosses label boundaries",
			hostname: "a.b.example.com",
			patterns: []string{"*.example.com"},
			want:     true,
		},
		{
			name:     "second pattern matches",
			hostname: "evil.com",
			patterns: []string{"*.corp.local", "evil.com"},
			want:     true,
		},
		{
			name:     "case sensitive",
			hostname: "Example.com",
			patterns: []string{"example.com"},
			want:     false,
		},
		{
			name:     "malformed pattern never matches",
			hostname: "example.com",
			patterns: []string{"[example.com"},
			want:     false,
		},
		{
			name:     "empty pattern set",
			hostname: "example.com",
			patterns: nil,
			want:     false,
		},
		{
			name:     "suffix equality does not leak to other hosts",
			hostname: "badexample.com",
			patterns: []string{"*.example.com"},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchHostname(tt.hostname, tt.patterns))
		})
	}
}
