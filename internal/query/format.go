package query

import (
	"fmt"
	"strings"

	"github.com/roach88/viewstore/internal/record"
)

// Serializer renders a query to a string.
type Serializer interface {
	Serialize(q Query) string
}

// SerializerFunc adapts a function to Serializer.
type SerializerFunc func(q Query) string

func (f SerializerFunc) Serialize(q Query) string { return f(q) }

// CompoundSeparator joins stage strings in the default serialization.
const CompoundSeparator = "&"

// DefaultSerializer is used by every Query's String method.
var DefaultSerializer Serializer = SerializerFunc(defaultSerialize)

// Format renders q with s, or with DefaultSerializer when s is nil.
func Format(q Query, s Serializer) string {
	if s == nil {
		s = DefaultSerializer
	}
	return s.Serialize(q)
}

func defaultSerialize(q Query) string {
	switch v := q.(type) {
	case nil:
		return ""
	case *Filter:
		if v.pred == nil {
			return "filter()"
		}
		return "filter(" + v.pred.String() + ")"
	case *Sort:
		dir := "asc"
		if v.descending {
			dir = "desc"
		}
		return fmt.Sprintf("sort(%s,%s)", v.key, dir)
	case *Range:
		return fmt.Sprintf("range(%d,%d)", v.offset, v.count)
	case *Select:
		return "select(" + record.MustCanonical(map[string]any(v.template)) + ")"
	case *Compound:
		parts := make([]string, 0, v.Len())
		for _, stage := range v.Stages() {
			parts = append(parts, defaultSerialize(stage))
		}
		return strings.Join(parts, CompoundSeparator)
	default:
		return fmt.Sprintf("%T", q)
	}
}
