/*
File: urlparts.go
Version: 1.0.0
Description: Lenient URL splitting shared by the rule engine and the feature extractor.
             The host is the full network location (userinfo and port included).
*/

package main

import (
	"strings"
)

// urlParts is the split form of a URL. ok is false when the network location is malformed,
// in which case host and path are empty.
type urlParts struct {
	scheme string
	host   string
	path   string
	ok     bool
}

// withDefaultScheme prefixes http:// when the string carries no "://" at all.
func withDefaultScheme(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "http://" + raw
}

// splitURL splits raw into scheme, network location and path without validating them.
// It never fails; malformed brackets in the network location yield empty parts, scheme included.
func splitURL(raw string) urlParts {
	var p urlParts
	rest := raw

	if i := strings.IndexByte(rest, ':'); i > 0 && isSchemeName(rest[:i]) {
		p.scheme = strings.ToLower(rest[:i])
		rest = rest[i+1:]
	}

	if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
		end := strings.IndexAny(rest, "/?#")
		if end < 0 {
			end = len(rest)
		}
		p.host, rest = rest[:end], rest[end:]
		if strings.Count(p.host, "[") != strings.Count(p.host, "]") {
			return urlParts{}
		}
	}

	if end := strings.IndexAny(rest, "?#"); end >= 0 {
		rest = rest[:end]
	}
	p.path = rest
	p.ok = true
	return p
}

func isSchemeName(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

// hostOf returns the lowercased network location of raw, defaulting the scheme.
func hostOf(raw string) string {
	return strings.ToLower(splitURL(withDefaultScheme(raw)).host)
}
