package tomstore

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Codec marshals and unmarshals a Tree to and from the tom document schema.
// xmlCodec below is the default implementation, built on the standard
// library's encoding/xml.
type Codec interface {
	Marshal(tree *Tree) ([]byte, error)
	Unmarshal(data []byte) (*Tree, error)
}

// xmlCodec implements Codec with the standard library's encoding/xml,
// treating every node as an element and every node's Text as character
// data.
type xmlCodec struct{}

// NewXMLCodec returns the default Codec.
func NewXMLCodec() Codec {
	return xmlCodec{}
}

func (xmlCodec) Marshal(tree *Tree) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: "tom"}}); err != nil {
		return nil, fmt.Errorf("tomstore: encode <tom>: %w", err)
	}
	if err := encodeNode(enc, "root", tree.Root); err != nil {
		return nil, err
	}
	if err := enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "tom"}}); err != nil {
		return nil, fmt.Errorf("tomstore: encode </tom>: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("tomstore: flush encoder: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeNode(enc *xml.Encoder, name string, node *Node) error {
	start := xml.StartElement{Name: xml.Name{Local: name}}
	if err := enc.EncodeToken(start); err != nil {
		return fmt.Errorf("tomstore: encode <%s>: %w", name, err)
	}
	if node.Text != "" {
		if err := enc.EncodeToken(xml.CharData(node.Text)); err != nil {
			return fmt.Errorf("tomstore: encode text of <%s>: %w", name, err)
		}
	}
	for _, child := range sortedChildNames(node) {
		if err := encodeNode(enc, child, node.Children[child]); err != nil {
			return err
		}
	}
	if err := enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: name}}); err != nil {
		return fmt.Errorf("tomstore: encode </%s>: %w", name, err)
	}
	return nil
}

func sortedChildNames(node *Node) []string {
	names := make([]string, 0, len(node.Children))
	for name := range node.Children {
		names = append(names, name)
	}
	// Deterministic output makes flush idempotent on an unmodified tree.
	slices.Sort(names)
	return names
}

func (xmlCodec) Unmarshal(data []byte) (*Tree, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var root *Node
	var stack []*Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tomstore: parse document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := newNode()
			if len(stack) == 0 {
				if t.Name.Local != "tom" {
					return nil, fmt.Errorf("tomstore: expected <tom>, got <%s>", t.Name.Local)
				}
			} else if len(stack) == 1 {
				if t.Name.Local != "root" {
					return nil, fmt.Errorf("tomstore: expected <root>, got <%s>", t.Name.Local)
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children[t.Name.Local] = node
			}
			stack = append(stack, node)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				text := string(t)
				if trimmed := strings.TrimSpace(text); trimmed != "" {
					stack[len(stack)-1].Text = trimmed
				}
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("tomstore: document has no <tom><root> element")
	}
	return &Tree{Root: root}, nil
}
