// Package document models the proxy configuration documents that templates
// and resources are made of. Only the outbounds and endpoints sequences are
// interpreted; every other field is carried through verbatim and in order.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	keyOutbounds = "outbounds"
	keyEndpoints = "endpoints"
)

// Document is a template or resource body
type Document struct {
	Outbounds []*Entry
	Endpoints []*Entry

	// fields holds every top-level field in declaration order. The
	// outbounds and endpoints slots are re-encoded from the slices above.
	fields *orderedmap.OrderedMap[string, json.RawMessage]
}

// New returns an empty document
func New() *Document {
	return &Document{fields: orderedmap.New[string, json.RawMessage]()}
}

// Parse decodes a document. The body must be a JSON object.
func Parse(data []byte) (*Document, error) {
	doc := New()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Outbound returns the first outbound carrying tag, or nil
func (d *Document) Outbound(tag string) *Entry {
	for _, e := range d.Outbounds {
		if e.Tag() == tag {
			return e
		}
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Document) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("document: expected a JSON object")
	}

	fields := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(trimmed, fields); err != nil {
		return fmt.Errorf("document: %w", err)
	}

	outbounds, err := decodeEntries(fields, keyOutbounds)
	if err != nil {
		return err
	}
	endpoints, err := decodeEntries(fields, keyEndpoints)
	if err != nil {
		return err
	}

	d.fields = fields
	d.Outbounds = outbounds
	d.Endpoints = endpoints
	return nil
}

// MarshalJSON implements json.Marshaler. Outbounds and endpoints keep the
// position they were declared at; when the document had none, they are
// written after every other field.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := orderedmap.New[string, json.RawMessage]()
	if d.fields != nil {
		for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, pair.Value)
		}
	}

	for _, slot := range []struct {
		key     string
		entries []*Entry
	}{
		{keyOutbounds, d.Outbounds},
		{keyEndpoints, d.Endpoints},
	} {
		_, declared := out.Get(slot.key)
		if slot.entries == nil && !declared {
			continue
		}
		entries := slot.entries
		if entries == nil {
			entries = []*Entry{}
		}
		raw, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("document: encode %s: %w", slot.key, err)
		}
		out.Set(slot.key, raw)
	}

	return json.Marshal(out)
}

func decodeEntries(fields *orderedmap.OrderedMap[string, json.RawMessage], key string) ([]*Entry, error) {
	raw, ok := fields.Get(key)
	if !ok || isNull(raw) {
		return nil, nil
	}

	var entries []*Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("document: decode %s: %w", key, err)
	}

	// null elements carry no tag and would break every later stage
	kept := entries[:0]
	for _, e := range entries {
		if e != nil {
			kept = append(kept, e)
		}
	}
	return kept, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
