package acl

import (
	"path"
	"strings"
)

// MatchHostname reports whether hostname matches at least one of the
// glob-style patterns (shell wildcards *, ?, [...]). A pattern starting with
// "*" additionally matches the hostname that equals the bare suffix itself:
// "*.example.com" matches "example.com" as well as "sub.example.com".
// Matching is case-sensitive; a malformed pattern never matches.
func MatchHostname(hostname string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, hostname); err == nil && ok {
			return true
		}
		if strings.HasPrefix(pattern, "*") {
			bare := strings.TrimLeft(pattern, "*")
			if hostname == bare || hostname == strings.TrimPrefix(bare, ".") {
				return true
			}
		}
	}
	return false
}
