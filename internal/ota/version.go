// Package ota implements the firmware update state machine (§4.H): the
// apply-with-download flow, semantic version comparison, and update
// discovery against the local firmware table and a GitHub release index.
package ota

import "strconv"

// ParseVersion parses a "x.y.z" string into a 3-tuple of non-negative
// integers. ok is false for anything else, including negative or missing
// components.
func ParseVersion(version string) (tuple [3]int, ok bool) {
	parts := splitDots(version)
	if len(parts) != 3 {
		return tuple, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return tuple, false
		}
		tuple[i] = n
	}
	return tuple, true
}

func splitDots(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// Newer reports whether candidate's version tuple is strictly greater
// than current's, lexicographically. Malformed input on either side
// yields false (§8 Property 8).
func Newer(candidate, current string) bool {
	c, ok := ParseVersion(candidate)
	if !ok {
		return false
	}
	b, ok := ParseVersion(current)
	if !ok {
		return false
	}
	for i := 0; i < 3; i++ {
		if c[i] != b[i] {
			return c[i] > b[i]
		}
	}
	return false
}
