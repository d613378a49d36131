// Package docfile reads and writes project documents as YAML or JSON
// files, converting between the on-disk form and the doctree model.
//
// YAML decoding goes through yaml.Node so map key order is preserved on
// round-trip; JSON files are decoded the same way (YAML is a superset),
// which keeps key order stable there too. Non-string scalars keep their
// tag, so numbers and booleans survive a load/save cycle typed.
package docfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/planweave/bidoc/doctree"
)

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads a .yaml/.yml/.json document file into a doctree value.
func Load(path string) (*doctree.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	v, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return v, nil
}

// Parse parses YAML or JSON document data.
func Parse(data []byte) (*doctree.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return doctree.NewNull(), nil
	}
	return fromNode(doc.Content[0])
}

// fromNode converts a yaml.Node subtree into a doctree value.
func fromNode(n *yaml.Node) (*doctree.Value, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return doctree.NewNull(), nil
		}
		v := doctree.NewScalar(n.Value)
		switch n.Tag {
		case "!!bool", "!!int", "!!float":
			v.Tag = n.Tag
		}
		return v, nil
	case yaml.SequenceNode:
		list := doctree.NewList()
		for _, item := range n.Content {
			child, err := fromNode(item)
			if err != nil {
				return nil, err
			}
			list.Append(child)
		}
		return list, nil
	case yaml.MappingNode:
		m := doctree.NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode := n.Content[i]
			child, err := fromNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m.SetField(keyNode.Value, child)
		}
		return m, nil
	case yaml.AliasNode:
		return fromNode(n.Alias)
	default:
		return nil, fmt.Errorf("unsupported node kind %d", n.Kind)
	}
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// Save serialises the document and writes it to path. The format is
// chosen by extension: .json writes JSON, everything else writes YAML.
func Save(path string, v *doctree.Value) error {
	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = MarshalJSON(v)
	} else {
		data, err = Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Marshal serialises a document as YAML, preserving key order.
func Marshal(v *doctree.Value) ([]byte, error) {
	return yaml.Marshal(toNode(v))
}

// toNode converts a doctree value into a yaml.Node subtree.
func toNode(v *doctree.Value) *yaml.Node {
	if v.IsNull() {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
	switch v.Kind {
	case doctree.Scalar:
		n := &yaml.Node{Kind: yaml.ScalarNode, Value: v.Str}
		if v.Tag != "" {
			n.Tag = v.Tag
		} else {
			n.Tag = "!!str"
		}
		return n
	case doctree.List:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.Items {
			n.Content = append(n.Content, toNode(item))
		}
		return n
	case doctree.Map:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range v.Keys() {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				toNode(v.Field(k)))
		}
		return n
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

// MarshalJSON serialises a document as indented JSON, preserving key
// order. The standard encoder sorts map keys, so objects are written by
// hand from the ordered doctree form.
func MarshalJSON(v *doctree.Value) ([]byte, error) {
	var b strings.Builder
	if err := writeJSON(&b, v, 0); err != nil {
		return nil, err
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func writeJSON(b *strings.Builder, v *doctree.Value, depth int) error {
	indent := strings.Repeat("  ", depth)
	child := strings.Repeat("  ", depth+1)

	if v.IsNull() {
		b.WriteString("null")
		return nil
	}
	switch v.Kind {
	case doctree.Scalar:
		switch v.Tag {
		case "!!bool", "!!int", "!!float":
			b.WriteString(v.Str)
		default:
			b.WriteString(quoteJSON(v.Str))
		}
	case doctree.List:
		if v.Len() == 0 {
			b.WriteString("[]")
			return nil
		}
		b.WriteString("[\n")
		for i, item := range v.Items {
			b.WriteString(child)
			if err := writeJSON(b, item, depth+1); err != nil {
				return err
			}
			if i < len(v.Items)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(indent + "]")
	case doctree.Map:
		keys := v.Keys()
		if len(keys) == 0 {
			b.WriteString("{}")
			return nil
		}
		b.WriteString("{\n")
		for i, k := range keys {
			b.WriteString(child)
			b.WriteString(quoteJSON(k))
			b.WriteString(": ")
			if err := writeJSON(b, v.Field(k), depth+1); err != nil {
				return err
			}
			if i < len(keys)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(indent + "}")
	}
	return nil
}

func quoteJSON(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
