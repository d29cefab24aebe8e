package document

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	keyTag     = "tag"
	keyType    = "type"
	keyMembers = "outbounds"
)

// Entry is a routable entry: an outbound or an endpoint. Only tag, type and,
// for groups, the member list are interpreted; other fields pass through.
type Entry struct {
	fields *orderedmap.OrderedMap[string, any]
}

// Tag returns the entry tag, or "" when absent or not a string
func (e *Entry) Tag() string {
	return e.stringField(keyTag)
}

// Type returns the entry type, or "" when absent or not a string
func (e *Entry) Type() string {
	return e.stringField(keyType)
}

// SetTag replaces the tag in place, keeping its position
func (e *Entry) SetTag(tag string) {
	e.fields.Set(keyTag, tag)
}

// Members returns the member tags of a group. Non-string members are skipped.
func (e *Entry) Members() []string {
	raw, ok := e.fields.Get(keyMembers)
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		tags := make([]string, 0, len(v))
		for _, m := range v {
			if s, ok := m.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	}
	return nil
}

// AppendMember appends a tag to the group's member list, creating the list
// when the entry has none
func (e *Entry) AppendMember(tag string) {
	raw, _ := e.fields.Get(keyMembers)
	switch v := raw.(type) {
	case []any:
		e.fields.Set(keyMembers, append(v, tag))
	case []string:
		e.fields.Set(keyMembers, append(v, tag))
	default:
		e.fields.Set(keyMembers, []any{tag})
	}
}

// UnmarshalJSON implements json.Unmarshaler
func (e *Entry) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("entry: expected a JSON object")
	}

	raw := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(trimmed, raw); err != nil {
		return fmt.Errorf("entry: %w", err)
	}

	fields := orderedmap.New[string, any](orderedmap.WithCapacity[string, any](raw.Len()))
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		value, err := decodeValue(pair.Value)
		if err != nil {
			return fmt.Errorf("entry: field %q: %w", pair.Key, err)
		}
		fields.Set(pair.Key, value)
	}

	e.fields = fields
	return nil
}

// MarshalJSON implements json.Marshaler
func (e *Entry) MarshalJSON() ([]byte, error) {
	if e.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.fields)
}

func (e *Entry) stringField(key string) string {
	if e.fields == nil {
		return ""
	}
	v, ok := e.fields.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// DecodeOrdered decodes any JSON value, keeping object keys in their
// declared order and numbers as json.Number
func DecodeOrdered(data []byte) (any, error) {
	return decodeValue(data)
}

// decodeValue keeps nested objects ordered so opaque fields re-encode with
// their original key order
func decodeValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty value")
	}

	switch trimmed[0] {
	case '{':
		obj := orderedmap.New[string, json.RawMessage]()
		if err := json.Unmarshal(trimmed, obj); err != nil {
			return nil, err
		}
		out := orderedmap.New[string, any]()
		for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
			v, err := decodeValue(pair.Value)
			if err != nil {
				return nil, err
			}
			out.Set(pair.Key, v)
		}
		return out, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		var v any
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
