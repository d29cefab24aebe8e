// Package output writes rendered documents in the formats the CLI offers.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/boxrender/internal/document"
)

// Formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Write encodes the JSON document data to w in format. When selector is
// set only the values it selects are written, one per line.
func Write(w io.Writer, data []byte, format, selector string) error {
	if selector != "" {
		return writeSelection(w, data, selector)
	}

	switch format {
	case FormatJSON, "":
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return fmt.Errorf("indent output: %w", err)
		}
		buf.WriteByte('\n')
		_, err := w.Write(buf.Bytes())
		return err
	case FormatYAML:
		return writeYAML(w, data)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeSelection(w io.Writer, data []byte, selector string) error {
	x, err := jp.ParseString(selector)
	if err != nil {
		return fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	root, err := oj.Parse(data)
	if err != nil {
		return fmt.Errorf("parse output: %w", err)
	}

	for _, v := range x.Get(root) {
		if s, ok := v.(string); ok {
			if _, err := fmt.Fprintln(w, s); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintln(w, oj.JSON(v, 2)); err != nil {
			return err
		}
	}
	return nil
}

func writeYAML(w io.Writer, data []byte) error {
	v, err := document.DecodeOrdered(data)
	if err != nil {
		return fmt.Errorf("decode output: %w", err)
	}
	node, err := toNode(v)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{node}}); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// toNode builds a yaml tree that keeps object keys in document order
func toNode(v any) (*yaml.Node, error) {
	switch val := v.(type) {
	case *orderedmap.OrderedMap[string, any]:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for pair := val.Oldest(); pair != nil; pair = pair.Next() {
			child, err := toNode(pair.Value)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, scalar("!!str", pair.Key), child)
		}
		return n, nil
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range val {
			child, err := toNode(item)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		return n, nil
	case json.Number:
		s := val.String()
		if strings.ContainsAny(s, ".eE") {
			return scalar("!!float", s), nil
		}
		return scalar("!!int", s), nil
	case string:
		return scalar("!!str", val), nil
	case bool:
		if val {
			return scalar("!!bool", "true"), nil
		}
		return scalar("!!bool", "false"), nil
	case nil:
		return scalar("!!null", "null"), nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}
