package tracker

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// LabelAttr is the attribute read as an element's label.
const LabelAttr = "title"

// HTMLNode adapts an element of a parsed HTML document to Node.
type HTMLNode struct {
	n *html.Node
}

// WrapHTML returns n as a Node, or nil when n is nil or not an element.
func WrapHTML(n *html.Node) Node {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	return HTMLNode{n: n}
}

func (h HTMLNode) Label() string {
	for _, a := range h.n.Attr {
		if a.Namespace == "" && a.Key == LabelAttr {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func (h HTMLNode) Children() []Node {
	var out []Node
	for c := h.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, HTMLNode{n: c})
		}
	}
	return out
}

func (h HTMLNode) Parent() Node {
	return WrapHTML(h.n.Parent)
}

func (h HTMLNode) PrevSibling() Node {
	for s := h.n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return HTMLNode{n: s}
		}
	}
	return nil
}

// ParseHTML parses a full document.
func ParseHTML(r io.Reader) (*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return doc, nil
}

// FindByID returns the first element under root whose id attribute equals id.
func FindByID(root *html.Node, id string) Node {
	stack := []*html.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "id" && a.Val == id {
					return HTMLNode{n: n}
				}
			}
		}
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
	return nil
}
