package patch

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/roach88/viewstore/internal/record"
)

// Op is a patch operation kind. Values match RFC 6902 names.
type Op string

const (
	OpAdd     Op = "add"
	OpReplace Op = "replace"
	OpRemove  Op = "remove"
)

// Operation is a single step of a Patch.
type Operation struct {
	Op    Op
	Path  Pointer
	Value any // unused for OpRemove
}

// Add creates an add operation.
func Add(path Pointer, value any) Operation {
	return Operation{Op: OpAdd, Path: path, Value: value}
}

// Replace creates a replace operation.
func Replace(path Pointer, value any) Operation {
	return Operation{Op: OpReplace, Path: path, Value: value}
}

// Remove creates a remove operation.
func Remove(path Pointer) Operation {
	return Operation{Op: OpRemove, Path: path}
}

// Patch is an ordered list of operations applied left to right.
type Patch struct {
	Ops []Operation
}

// New creates a patch from operations.
func New(ops ...Operation) Patch {
	return Patch{Ops: ops}
}

// IsEmpty reports whether the patch has no operations.
func (p Patch) IsEmpty() bool {
	return len(p.Ops) == 0
}

// Apply returns a new record with every operation applied in order.
// The input is not modified. The first operation that cannot be applied
// aborts the whole patch with an error naming its index and path.
func (p Patch) Apply(r record.Record) (record.Record, error) {
	var doc any = map[string]any(r.Clone())
	if r == nil {
		doc = map[string]any{}
	}
	for i, op := range p.Ops {
		next, err := applyOp(doc, op)
		if err != nil {
			return nil, fmt.Errorf("patch op %d (%s %s): %w", i, op.Op, op.Path, err)
		}
		doc = next
	}
	obj, ok := record.AsObject(doc)
	if !ok {
		return nil, fmt.Errorf("patch produced %T, expected an object", doc)
	}
	return record.Record(obj), nil
}

func applyOp(doc any, op Operation) (any, error) {
	switch op.Op {
	case OpAdd, OpReplace, OpRemove:
	default:
		return nil, fmt.Errorf("unknown operation %q", op.Op)
	}
	if op.Path.IsRoot() {
		if op.Op == OpRemove {
			return nil, fmt.Errorf("cannot remove the document root")
		}
		return record.Clone(record.Normalize(op.Value)), nil
	}
	return applyAt(doc, op.Path.segments, op)
}

// applyAt walks to the parent of the target and performs op on the last
// segment. Containers are rebuilt on the way back up because slices may
// change length.
func applyAt(container any, segs []string, op Operation) (any, error) {
	seg := segs[0]
	if len(segs) == 1 {
		return applyLeaf(container, seg, op)
	}

	switch c := container.(type) {
	case map[string]any:
		child, ok := c[seg]
		if !ok {
			return nil, fmt.Errorf("path segment %q not found", seg)
		}
		next, err := applyAt(child, segs[1:], op)
		if err != nil {
			return nil, err
		}
		c[seg] = next
		return c, nil
	case []any:
		idx, err := arrayIndex(seg, len(c), false)
		if err != nil {
			return nil, err
		}
		next, err := applyAt(c[idx], segs[1:], op)
		if err != nil {
			return nil, err
		}
		c[idx] = next
		return c, nil
	default:
		return nil, fmt.Errorf("cannot traverse %T at segment %q", container, seg)
	}
}

func applyLeaf(container any, seg string, op Operation) (any, error) {
	value := record.Clone(record.Normalize(op.Value))

	switch c := container.(type) {
	case map[string]any:
		_, exists := c[seg]
		switch op.Op {
		case OpAdd:
			c[seg] = value
		case OpReplace:
			if !exists {
				return nil, fmt.Errorf("key %q not found", seg)
			}
			c[seg] = value
		case OpRemove:
			if !exists {
				return nil, fmt.Errorf("key %q not found", seg)
			}
			delete(c, seg)
		}
		return c, nil

	case []any:
		switch op.Op {
		case OpAdd:
			if seg == "-" {
				return append(c, value), nil
			}
			idx, err := arrayIndex(seg, len(c), true)
			if err != nil {
				return nil, err
			}
			out := make([]any, 0, len(c)+1)
			out = append(out, c[:idx]...)
			out = append(out, value)
			return append(out, c[idx:]...), nil
		case OpReplace:
			idx, err := arrayIndex(seg, len(c), false)
			if err != nil {
				return nil, err
			}
			c[idx] = value
			return c, nil
		case OpRemove:
			idx, err := arrayIndex(seg, len(c), false)
			if err != nil {
				return nil, err
			}
			out := make([]any, 0, len(c)-1)
			out = append(out, c[:idx]...)
			return append(out, c[idx+1:]...), nil
		}
	}
	return nil, fmt.Errorf("cannot apply %s to %T at segment %q", op.Op, container, seg)
}

// arrayIndex parses an array segment. Insert positions may equal length.
func arrayIndex(seg string, length int, insert bool) (int, error) {
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("invalid array index %q", seg)
	}
	limit := length
	if insert {
		limit++
	}
	if idx >= limit {
		return 0, fmt.Errorf("array index %d out of range (len %d)", idx, length)
	}
	return idx, nil
}

// ToJSONPatch renders the patch as RFC 6902 operation objects.
func (p Patch) ToJSONPatch() []map[string]any {
	out := make([]map[string]any, len(p.Ops))
	for i, op := range p.Ops {
		m := map[string]any{
			"op":   string(op.Op),
			"path": op.Path.String(),
		}
		if op.Op != OpRemove {
			m["value"] = op.Value
		}
		out[i] = m
	}
	return out
}

// String returns the canonical JSON form of ToJSONPatch.
func (p Patch) String() string {
	ops := make([]any, len(p.Ops))
	for i, m := range p.ToJSONPatch() {
		ops[i] = map[string]any(m)
	}
	return record.MustCanonical(ops)
}

// MarshalJSON implements json.Marshaler using the RFC 6902 form.
func (p Patch) MarshalJSON() ([]byte, error) {
	ops := make([]any, len(p.Ops))
	for i, m := range p.ToJSONPatch() {
		ops[i] = map[string]any(m)
	}
	return record.MarshalCanonical(ops)
}

// UnmarshalJSON implements json.Unmarshaler for RFC 6902 documents.
func (p *Patch) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSONPatch(data)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseJSONPatch parses an RFC 6902 document restricted to add/replace/remove.
func ParseJSONPatch(data []byte) (Patch, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Patch{}, fmt.Errorf("parse json patch: %w", err)
	}
	list := make([]map[string]any, len(raw))
	for i, entry := range raw {
		m := make(map[string]any, len(entry))
		for k, v := range entry {
			val, err := record.UnmarshalValue(v)
			if err != nil {
				return Patch{}, fmt.Errorf("parse json patch op %d field %q: %w", i, k, err)
			}
			m[k] = val
		}
		list[i] = m
	}
	return FromMaps(list)
}

// FromMaps builds a patch from decoded RFC 6902 operation objects, such as
// those loaded from YAML.
func FromMaps(list []map[string]any) (Patch, error) {
	ops := make([]Operation, 0, len(list))
	for i, m := range list {
		kind, _ := m["op"].(string)
		pathStr, ok := m["path"].(string)
		if !ok {
			return Patch{}, fmt.Errorf("patch op %d: missing path", i)
		}
		path, err := ParsePointer(pathStr)
		if err != nil {
			return Patch{}, fmt.Errorf("patch op %d: %w", i, err)
		}
		op := Operation{Op: Op(kind), Path: path}
		switch op.Op {
		case OpAdd, OpReplace:
			value, ok := m["value"]
			if !ok {
				return Patch{}, fmt.Errorf("patch op %d: %s requires a value", i, kind)
			}
			op.Value = record.Normalize(value)
		case OpRemove:
		default:
			return Patch{}, fmt.Errorf("patch op %d: unsupported operation %q", i, kind)
		}
		ops = append(ops, op)
	}
	return Patch{Ops: ops}, nil
}
