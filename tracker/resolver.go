// Package tracker turns visitor interactions into tracking requests. It
// resolves a human readable label for the element that was interacted with
// and sends one event per resolved interaction to the ingestion endpoint.
package tracker

import (
	"strings"
)

// DefaultStepBudget caps how many nodes a single resolution may inspect.
const DefaultStepBudget = 70

// Node is the view of a document tree the resolver needs. Implementations
// must be comparable and must return an untyped nil when there is no parent
// or previous sibling.
type Node interface {
	// Label is the explicit label attribute, or "" when the node has none.
	Label() string
	// Children are the element children in document order.
	Children() []Node
	Parent() Node
	// PrevSibling is the previous element sibling.
	PrevSibling() Node
}

// Resolver finds the label for an interaction target. The zero value uses
// DefaultStepBudget.
type Resolver struct {
	Budget int
}

// ResolveLabel resolves target with the default budget.
func ResolveLabel(target Node) (string, bool) {
	return Resolver{}.Resolve(target)
}

// Resolve looks for a label on the target, then in its descendants, then on
// each ancestor and that ancestor's descendants, and finally on the chain of
// previous siblings. Every node inspected costs one step; when the budget
// runs out the search stops with no result.
func (r Resolver) Resolve(target Node) (string, bool) {
	if target == nil {
		return "", false
	}
	budget := r.Budget
	if budget <= 0 {
		budget = DefaultStepBudget
	}

	s := &search{remaining: budget}
	label := s.resolve(target)
	return label, label != ""
}

// Steps reports how many nodes Resolve would inspect for target.
func (r Resolver) Steps(target Node) int {
	if target == nil {
		return 0
	}
	budget := r.Budget
	if budget <= 0 {
		budget = DefaultStepBudget
	}
	s := &search{remaining: budget}
	s.resolve(target)
	return budget - s.remaining
}

type search struct {
	remaining int
	exhausted bool
}

func (s *search) resolve(target Node) string {
	if label := s.inspect(target); label != "" || s.exhausted {
		return label
	}
	if label := s.descendants(target, nil); label != "" || s.exhausted {
		return label
	}

	// The subtree we climbed out of has already been searched.
	from := target
	for p := target.Parent(); p != nil; p = p.Parent() {
		if label := s.inspect(p); label != "" || s.exhausted {
			return label
		}
		if label := s.descendants(p, from); label != "" || s.exhausted {
			return label
		}
		from = p
	}

	// Icon-only controls often sit next to a labeled neighbor.
	for sib := target.PrevSibling(); sib != nil; sib = sib.PrevSibling() {
		if label := s.inspect(sib); label != "" || s.exhausted {
			return label
		}
		if label := s.descendants(sib, nil); label != "" || s.exhausted {
			return label
		}
	}
	return ""
}

// inspect spends one step on n and returns its trimmed label.
func (s *search) inspect(n Node) string {
	if s.remaining <= 0 {
		s.exhausted = true
		return ""
	}
	s.remaining--
	return strings.TrimSpace(n.Label())
}

// descendants walks the subtree under root depth first in document order,
// skipping the subtree rooted at skip.
func (s *search) descendants(root, skip Node) string {
	stack := pushChildren(nil, root, skip)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if label := s.inspect(n); label != "" || s.exhausted {
			return label
		}
		stack = pushChildren(stack, n, nil)
	}
	return ""
}

func pushChildren(stack []Node, n, skip Node) []Node {
	children := n.Children()
	for i := len(children) - 1; i >= 0; i-- {
		if skip != nil && children[i] == skip {
			continue
		}
		stack = append(stack, children[i])
	}
	return stack
}
