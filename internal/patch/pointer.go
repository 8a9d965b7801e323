package patch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/viewstore/internal/record"
)

// Pointer addresses a location inside a record.
// The zero value addresses the record itself.
type Pointer struct {
	segments []string
}

// NewPointer creates a pointer from unescaped segments.
func NewPointer(segments ...string) Pointer {
	if len(segments) == 0 {
		return Pointer{}
	}
	return Pointer{segments: append([]string(nil), segments...)}
}

// ParsePointer parses the escaped string form ("/a/b~1c").
// The empty string is the root pointer.
func ParsePointer(s string) (Pointer, error) {
	if s == "" {
		return Pointer{}, nil
	}
	if !strings.HasPrefix(s, "/") {
		return Pointer{}, fmt.Errorf("pointer %q must start with '/'", s)
	}
	parts := strings.Split(s[1:], "/")
	for i, part := range parts {
		seg, err := Unescape(part)
		if err != nil {
			return Pointer{}, fmt.Errorf("pointer %q: %w", s, err)
		}
		parts[i] = seg
	}
	return Pointer{segments: parts}, nil
}

// MustParsePointer is ParsePointer that panics on malformed input.
// Intended for literals in code and tests.
func MustParsePointer(s string) Pointer {
	p, err := ParsePointer(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Escape escapes a single segment: "~" → "~0", "/" → "~1".
func Escape(segment string) string {
	segment = strings.ReplaceAll(segment, "~", "~0")
	return strings.ReplaceAll(segment, "/", "~1")
}

// Unescape reverses Escape. A "~" not followed by 0 or 1 is an error.
func Unescape(segment string) (string, error) {
	if !strings.Contains(segment, "~") {
		return segment, nil
	}
	var b strings.Builder
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if c != '~' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(segment) {
			return "", fmt.Errorf("dangling '~' in segment %q", segment)
		}
		switch segment[i+1] {
		case '0':
			b.WriteByte('~')
		case '1':
			b.WriteByte('/')
		default:
			return "", fmt.Errorf("invalid escape '~%c' in segment %q", segment[i+1], segment)
		}
		i++
	}
	return b.String(), nil
}

// String returns the escaped pointer form.
func (p Pointer) String() string {
	if len(p.segments) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range p.segments {
		b.WriteByte('/')
		b.WriteString(Escape(seg))
	}
	return b.String()
}

// Segments returns a copy of the unescaped segments.
func (p Pointer) Segments() []string {
	return append([]string(nil), p.segments...)
}

// Len returns the number of segments.
func (p Pointer) Len() int {
	return len(p.segments)
}

// IsRoot reports whether p addresses the whole record.
func (p Pointer) IsRoot() bool {
	return len(p.segments) == 0
}

// Push returns a pointer one level deeper.
func (p Pointer) Push(segment string) Pointer {
	segs := make([]string, len(p.segments)+1)
	copy(segs, p.segments)
	segs[len(p.segments)] = segment
	return Pointer{segments: segs}
}

// Pop returns a pointer one level shallower. Popping the root yields the root.
func (p Pointer) Pop() Pointer {
	if len(p.segments) <= 1 {
		return Pointer{}
	}
	return Pointer{segments: append([]string(nil), p.segments[:len(p.segments)-1]...)}
}

// Last returns the final segment, or "" for the root.
func (p Pointer) Last() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Equal reports whether two pointers address the same location.
func (p Pointer) Equal(other Pointer) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i := range p.segments {
		if p.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// Get resolves the pointer against v. Object segments are keys; array
// segments are decimal indexes.
func (p Pointer) Get(v any) (any, bool) {
	cur := v
	for _, seg := range p.segments {
		switch c := cur.(type) {
		case record.Record:
			next, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case map[string]any:
			next, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, false
			}
			cur = c[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// MarshalText implements encoding.TextMarshaler.
func (p Pointer) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pointer) UnmarshalText(text []byte) error {
	parsed, err := ParsePointer(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
