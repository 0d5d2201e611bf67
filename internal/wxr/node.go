package wxr

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// Node is one expanded entity subtree. Only a single top-level entity is held
// in memory at a time; the reader discards each node once the caller moves on.
// Name is the local element name: <wp:post_id> becomes Name "post_id", with
// the resolved namespace kept in Space for the few names that collide.
type Node struct {
	Name     string
	Space    string
	Attrs    map[string]string
	Children []Node
	Text     string
}

// UnmarshalXML expands the element started by start into this node.
func (n *Node) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	n.Name = start.Name.Local
	n.Space = start.Name.Space
	if len(start.Attr) > 0 {
		n.Attrs = make(map[string]string, len(start.Attr))
		for _, a := range start.Attr {
			n.Attrs[a.Name.Local] = a.Value
		}
	}

	var text strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var child Node
			if err := child.UnmarshalXML(d, t); err != nil {
				return err
			}
			n.Children = append(n.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			n.Text = text.String()
			return nil
		}
	}
}

// Child returns the first child with the given name, or nil.
func (n *Node) Child(name string) *Node {
	for i := range n.Children {
		if n.Children[i].Name == name {
			return &n.Children[i]
		}
	}
	return nil
}

// ChildText returns the trimmed text of the first child with the given name,
// or "" if absent.
func (n *Node) ChildText(name string) string {
	if c := n.Child(name); c != nil {
		return strings.TrimSpace(c.Text)
	}
	return ""
}

// ChildInt returns the integer value of the first child with the given name,
// or 0 if absent or not a number.
func (n *Node) ChildInt(name string) int64 {
	v, err := strconv.ParseInt(n.ChildText(name), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Attr returns the named attribute value, or "" if absent.
func (n *Node) Attr(name string) string {
	return n.Attrs[name]
}
