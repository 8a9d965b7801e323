package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnmarshalValue decodes JSON into a normalized record value.
// Integral numbers decode to int64, others to float64.
func UnmarshalValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return Normalize(raw), nil
}

// Unmarshal decodes a JSON object into a Record.
func Unmarshal(data []byte) (Record, error) {
	v, err := UnmarshalValue(data)
	if err != nil {
		return nil, err
	}
	obj, ok := AsObject(v)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", v)
	}
	return Record(obj), nil
}

// UnmarshalList decodes a JSON array of objects into records.
func UnmarshalList(data []byte) ([]Record, error) {
	v, err := UnmarshalValue(data)
	if err != nil {
		return nil, err
	}
	return ListFrom(v)
}

// ListFrom converts a normalized []any of objects into records.
func ListFrom(v any) ([]Record, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array of objects, got %T", v)
	}
	out := make([]Record, len(list))
	for i, elem := range list {
		obj, ok := AsObject(elem)
		if !ok {
			return nil, fmt.Errorf("array[%d]: expected object, got %T", i, elem)
		}
		out[i] = Record(obj)
	}
	return out, nil
}
