package tracker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// node is an in-memory tree used to exercise the resolver without HTML.
type node struct {
	label    string
	parent   *node
	children []*node
}

func el(label string, children ...*node) *node {
	n := &node{label: label, children: children}
	for _, c := range children {
		c.parent = n
	}
	return n
}

func (n *node) Label() string { return n.label }

func (n *node) Children() []Node {
	out := make([]Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	return out
}

func (n *node) Parent() Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *node) PrevSibling() Node {
	if n.parent == nil {
		return nil
	}
	var prev *node
	for _, c := range n.parent.children {
		if c == n {
			break
		}
		prev = c
	}
	if prev == nil {
		return nil
	}
	return prev
}

func TestResolve_OwnLabel(t *testing.T) {
	target := el("Contact", el("Inner"))
	el("", target)

	label, ok := ResolveLabel(target)
	require.True(t, ok)
	assert.Equal(t, "Contact", label)
}

func TestResolve_DescendantInDocumentOrder(t *testing.T) {
	target := el("", el("", el("Deep First")), el("Second"))

	label, ok := ResolveLabel(target)
	require.True(t, ok)
	assert.Equal(t, "Deep First", label)
}

func TestResolve_Ancestor(t *testing.T) {
	target := el("")
	el("Card", el("", target))

	label, ok := ResolveLabel(target)
	require.True(t, ok)
	assert.Equal(t, "Card", label)
}

func TestResolve_Cousin(t *testing.T) {
	// A click on an icon inside a card resolves to the card's labeled heading.
	icon := el("")
	el("", el("", el("GitHub")), el("", icon))

	label, ok := ResolveLabel(icon)
	require.True(t, ok)
	assert.Equal(t, "GitHub", label)
}

func TestResolve_PreviousSiblingWithoutParent(t *testing.T) {
	// Siblings linked without a parent, so only the sibling chain can reach the label.
	labeled := &siblingNode{label: "Resume"}
	blank := &siblingNode{prev: labeled}
	target := &siblingNode{prev: blank}

	label, ok := ResolveLabel(target)
	require.True(t, ok)
	assert.Equal(t, "Resume", label)
}

func TestResolve_NoLabelAnywhere(t *testing.T) {
	target := el("", el(""), el("", el("")))
	el("", el(""), el("", target), el(""))

	label, ok := ResolveLabel(target)
	assert.False(t, ok)
	assert.Empty(t, label)
}

func TestResolve_WhitespaceLabelIgnored(t *testing.T) {
	target := el("   ", el("  Blog  "))

	label, ok := ResolveLabel(target)
	require.True(t, ok)
	assert.Equal(t, "Blog", label)
}

func TestResolve_NilTarget(t *testing.T) {
	_, ok := ResolveLabel(nil)
	assert.False(t, ok)
}

func TestResolve_BudgetBoundsWork(t *testing.T) {
	// A wide unlabeled subtree with the only label at the very end.
	var kids []*node
	for i := 0; i < 500; i++ {
		kids = append(kids, el(""))
	}
	kids = append(kids, el("Far Away"))
	target := el("", kids...)

	_, ok := Resolver{}.Resolve(target)
	assert.False(t, ok, "label beyond the default budget is not found")
	assert.Equal(t, DefaultStepBudget, Resolver{}.Steps(target))

	label, ok := Resolver{Budget: 1000}.Resolve(target)
	require.True(t, ok)
	assert.Equal(t, "Far Away", label)
}

func TestResolve_StepsOnSmallTree(t *testing.T) {
	target := el("", el(""), el(""))
	el("", target)

	// target, two children and the parent; the target subtree is not revisited.
	assert.Equal(t, 4, Resolver{}.Steps(target))
}

func TestResolve_HTML(t *testing.T) {
	doc, err := ParseHTML(strings.NewReader(`
		<html><body>
			<section title="Projects">
				<div class="card">
					<h3 title=" ShopX India ">ShopX</h3>
					<a id="repo"><svg id="icon"></svg></a>
				</div>
			</section>
			<footer>
				<span id="label-free"></span>
			</footer>
			<button title="Contact" id="contact"><i id="contact-icon"></i></button>
		</body></html>`))
	require.NoError(t, err)

	tests := []struct {
		id       string
		expected string
	}{
		{"icon", "ShopX India"},
		{"repo", "ShopX India"},
		{"contact", "Contact"},
		{"contact-icon", "Contact"},
		{"label-free", "Projects"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			target := FindByID(doc, tt.id)
			require.NotNil(t, target, fmt.Sprintf("element #%s", tt.id))
			label, ok := ResolveLabel(target)
			require.True(t, ok)
			assert.Equal(t, tt.expected, label)
		})
	}

	assert.Nil(t, FindByID(doc, "missing"))
}

func TestResolve_HTMLWithoutLabels(t *testing.T) {
	doc, err := ParseHTML(strings.NewReader(`<div><p><span id="t">x</span></p><p>y</p></div>`))
	require.NoError(t, err)

	_, ok := ResolveLabel(FindByID(doc, "t"))
	assert.False(t, ok)
}

type siblingNode struct {
	label string
	prev  *siblingNode
}

func (n *siblingNode) Label() string    { return n.label }
func (n *siblingNode) Children() []Node { return nil }
func (n *siblingNode) Parent() Node     { return nil }

func (n *siblingNode) PrevSibling() Node {
	if n.prev == nil {
		return nil
	}
	return n.prev
}
