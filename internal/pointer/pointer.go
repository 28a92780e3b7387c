// Package pointer implements the slash-delimited path format used to address
// nodes inside configuration documents. Segment escaping follows RFC 6901:
// "~" is written as "~0" and "/" as "~1".
package pointer

import (
	"fmt"
	"strconv"
	"strings"
)

// Root addresses the whole document.
const Root = ""

var (
	escaper   = strings.NewReplacer("~", "~0", "/", "~1")
	unescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

// Escape encodes a single segment name.
func Escape(segment string) string { return escaper.Replace(segment) }

// Unescape decodes a single escaped segment.
func Unescape(segment string) string { return unescaper.Replace(segment) }

// Join appends an escaped segment to parent.
func Join(parent, segment string) string { return parent + "/" + Escape(segment) }

// Index appends an array index to parent.
func Index(parent string, i int) string { return Join(parent, strconv.Itoa(i)) }

// Split returns the unescaped segments of path. The root path yields nil.
func Split(path string) ([]string, error) {
	if path == Root {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("pointer %q: must start with '/'", path)
	}
	raw := strings.Split(path[1:], "/")
	out := make([]string, len(raw))
	for i, s := range raw {
		out[i] = Unescape(s)
	}
	return out, nil
}

// ArrayIndex parses a segment as a non-negative array index.
// Leading zeros are rejected as in RFC 6901.
func ArrayIndex(segment string) (int, bool) {
	if segment == "" || (len(segment) > 1 && segment[0] == '0') {
		return 0, false
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(segment)
	if err != nil {
		return 0, false
	}
	return n, true
}
