// Package rendertree provides the render-tree adapter consumed by the
// highlight renderer and the search engine.
//
// The tree is a deliberately small model of a rendered document: element
// nodes contain ordered children, text leaves carry the visible text, and
// marker nodes wrap located ranges with an annotation identity. The flattened
// text of the tree is the concatenation of its text leaves in document order;
// marker nodes contribute no text of their own, so wrapping and unwrapping
// never change the flattened text. Addressing code depends on that invariant.
//
// The adapter surface is Wrap, LocateText, EnumerateTextNodes and Normalize.
// Everything else is bookkeeping around those four operations.
package rendertree

import (
	"fmt"
	"strings"
)

// NodeType distinguishes the node kinds in the tree.
type NodeType int

const (
	// ElementNode is a structural node with children.
	ElementNode NodeType = iota
	// TextNode is a leaf carrying visible text.
	TextNode
	// MarkerNode wraps a located range with an annotation identity.
	MarkerNode
)

// MarkerSpec describes the marker to create when wrapping a range. Panel is
// the identifier of the panel the marker's interactive affordance opens (the
// note editor for notes, the bookmark list for bookmarks).
type MarkerSpec struct {
	ID    string // Annotation id carried by the marker
	Kind  string // "note", "bookmark" or "search"
	Panel string // Panel opened when the marker is activated
}

// Node is a single node in the render tree.
type Node struct {
	Type     NodeType
	Text     string     // TextNode only
	Marker   MarkerSpec // MarkerNode only
	Children []*Node
	Parent   *Node
}

// Range identifies a contiguous span of text in the tree. Offsets are
// relative to the start of the respective node's text.
type Range struct {
	StartNode   *Node
	StartOffset int
	EndNode     *Node
	EndOffset   int
}

// Tree is a rendered document tree.
type Tree struct {
	root *Node
}

// New builds a tree with a single text leaf holding text.
func New(text string) *Tree {
	return NewFromSegments([]string{text})
}

// NewFromSegments builds a tree with one text leaf per segment, in order.
// Callers typically pass one segment per chapter.
func NewFromSegments(segments []string) *Tree {
	root := &Node{Type: ElementNode}
	for _, seg := range segments {
		child := &Node{Type: TextNode, Text: seg, Parent: root}
		root.Children = append(root.Children, child)
	}
	return &Tree{root: root}
}

// Root returns the tree's root element.
func (t *Tree) Root() *Node {
	return t.root
}

// Text returns the flattened text of the tree: all text leaves concatenated
// in document order.
func (t *Tree) Text() string {
	var b strings.Builder
	walkText(t.root, func(n *Node) bool {
		b.WriteString(n.Text)
		return true
	})
	return b.String()
}

// EnumerateTextNodes returns the tree's text leaves in document order.
func (t *Tree) EnumerateTextNodes() []*Node {
	var nodes []*Node
	walkText(t.root, func(n *Node) bool {
		nodes = append(nodes, n)
		return true
	})
	return nodes
}

// LocateText maps a character range in flattened-text coordinates onto tree
// nodes. Returns false if the range falls outside the tree's text.
func (t *Tree) LocateText(charOffset, length int) (Range, bool) {
	if charOffset < 0 || length < 0 {
		return Range{}, false
	}
	end := charOffset + length

	var r Range
	pos := 0
	complete := false
	walkText(t.root, func(n *Node) bool {
		nodeEnd := pos + len(n.Text)
		if r.StartNode == nil && charOffset < nodeEnd {
			r.StartNode = n
			r.StartOffset = charOffset - pos
		}
		if r.StartNode != nil && end <= nodeEnd {
			r.EndNode = n
			r.EndOffset = end - pos
			complete = true
			return false
		}
		pos = nodeEnd
		return true
	})

	// A zero-length range at the very end of the text is still locatable.
	if !complete && r.StartNode == nil && charOffset == t.textLen() && length == 0 {
		leaves := t.EnumerateTextNodes()
		if len(leaves) > 0 {
			last := leaves[len(leaves)-1]
			return Range{StartNode: last, StartOffset: len(last.Text), EndNode: last, EndOffset: len(last.Text)}, true
		}
	}
	if !complete {
		return Range{}, false
	}
	return r, true
}

// Wrap replaces the located range with a marker node containing the covered
// text. Boundary text nodes are split so the marker covers exactly the
// requested range. Fails if the range boundaries end up under different
// parents (the range crosses an existing marker boundary), mirroring how a
// real rendered tree refuses to surround a partially-overlapping selection.
func (t *Tree) Wrap(r Range, spec MarkerSpec) (*Node, error) {
	if r.StartNode == nil || r.EndNode == nil {
		return nil, fmt.Errorf("wrap: incomplete range")
	}

	startNode := r.StartNode
	endNode := r.EndNode
	endOffset := r.EndOffset

	// Split the start boundary. When both boundaries share a node, the end
	// offset shifts into the right-hand piece.
	if r.StartOffset > 0 {
		right := splitText(startNode, r.StartOffset)
		if startNode == endNode {
			endNode = right
			endOffset -= r.StartOffset
		}
		startNode = right
	}
	// Split the end boundary, keeping the left-hand piece inside the range.
	if endOffset < len(endNode.Text) {
		splitText(endNode, endOffset)
	} else if endOffset == 0 {
		// Zero-length range at a node head: wrap nothing but still create the
		// marker in place so idempotency checks find it.
		endNode = startNode
	}

	if startNode.Parent != endNode.Parent {
		return nil, fmt.Errorf("wrap: range crosses a marker boundary")
	}

	parent := startNode.Parent
	si := childIndex(parent, startNode)
	ei := childIndex(parent, endNode)
	if si < 0 || ei < 0 || ei < si {
		return nil, fmt.Errorf("wrap: range nodes are not siblings in order")
	}

	marker := &Node{Type: MarkerNode, Marker: spec, Parent: parent}
	covered := make([]*Node, ei-si+1)
	copy(covered, parent.Children[si:ei+1])
	for _, c := range covered {
		c.Parent = marker
	}
	marker.Children = covered

	rest := append([]*Node{marker}, parent.Children[ei+1:]...)
	parent.Children = append(parent.Children[:si], rest...)
	return marker, nil
}

// Unwrap removes the marker with the given id, reparenting its children in
// place. Returns false if no such marker exists. Callers should Normalize
// afterward so the flattened-text token stream is not left fragmented.
func (t *Tree) Unwrap(id string) bool {
	marker := t.FindMarker(id)
	if marker == nil {
		return false
	}
	t.removeMarker(marker)
	return true
}

func (t *Tree) removeMarker(marker *Node) {
	parent := marker.Parent
	i := childIndex(parent, marker)
	if i < 0 {
		return
	}
	for _, c := range marker.Children {
		c.Parent = parent
	}
	children := append([]*Node{}, parent.Children[:i]...)
	children = append(children, marker.Children...)
	children = append(children, parent.Children[i+1:]...)
	parent.Children = children
}

// UnwrapKind removes every marker of the given kind ("" removes all markers).
// Returns the number removed. Callers should Normalize afterward.
func (t *Tree) UnwrapKind(kind string) int {
	removed := 0
	for {
		marker := findMarker(t.root, func(n *Node) bool {
			return kind == "" || n.Marker.Kind == kind
		})
		if marker == nil {
			return removed
		}
		t.removeMarker(marker)
		removed++
	}
}

// Normalize merges adjacent text leaves and drops empty ones, recursively.
// Required after unwrapping so subsequent address computations see the same
// token stream as a freshly rendered tree.
func (t *Tree) Normalize() {
	normalize(t.root)
}

// FindMarker returns the marker node carrying the given annotation id, or nil.
func (t *Tree) FindMarker(id string) *Node {
	return findMarker(t.root, func(n *Node) bool {
		return n.Marker.ID == id
	})
}

// Markers returns all marker nodes of the given kind in document order
// ("" matches every kind).
func (t *Tree) Markers(kind string) []*Node {
	var out []*Node
	walk(t.root, func(n *Node) bool {
		if n.Type == MarkerNode && (kind == "" || n.Marker.Kind == kind) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// MarkerRange returns the flattened-text range covered by the marker with the
// given id.
func (t *Tree) MarkerRange(id string) (start, end int, ok bool) {
	marker := t.FindMarker(id)
	if marker == nil {
		return 0, 0, false
	}
	pos := 0
	found := false
	walkText(t.root, func(n *Node) bool {
		if !found && isDescendant(n, marker) {
			start = pos
			found = true
		}
		if found {
			if !isDescendant(n, marker) {
				end = pos
				return false
			}
			end = pos + len(n.Text)
		}
		pos += len(n.Text)
		return true
	})
	return start, end, found
}

func (t *Tree) textLen() int {
	n := 0
	walkText(t.root, func(leaf *Node) bool {
		n += len(leaf.Text)
		return true
	})
	return n
}

// splitText splits a text node at offset, leaving the left piece in place and
// inserting the right piece immediately after it. Returns the right piece.
func splitText(n *Node, offset int) *Node {
	right := &Node{Type: TextNode, Text: n.Text[offset:], Parent: n.Parent}
	n.Text = n.Text[:offset]
	parent := n.Parent
	i := childIndex(parent, n)
	rest := append([]*Node{right}, parent.Children[i+1:]...)
	parent.Children = append(parent.Children[:i+1], rest...)
	return right
}

func childIndex(parent, child *Node) int {
	if parent == nil {
		return -1
	}
	for i, c := range parent.Children {
		if c == child {
			return i
		}
	}
	return -1
}

func isDescendant(n, ancestor *Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

func normalize(n *Node) {
	if n.Type == TextNode {
		return
	}
	var merged []*Node
	for _, c := range n.Children {
		normalize(c)
		if c.Type == TextNode {
			if c.Text == "" {
				continue
			}
			if len(merged) > 0 && merged[len(merged)-1].Type == TextNode {
				merged[len(merged)-1].Text += c.Text
				continue
			}
		}
		merged = append(merged, c)
	}
	n.Children = merged
}

// findMarker returns the first marker node satisfying pred, in document
// order, or nil.
func findMarker(root *Node, pred func(*Node) bool) *Node {
	var found *Node
	walk(root, func(n *Node) bool {
		if n.Type == MarkerNode && pred(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// walk visits every node depth-first in document order. The callback returns
// false to stop the walk.
func walk(n *Node, fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

// walkText visits text leaves in document order.
func walkText(root *Node, fn func(*Node) bool) {
	walk(root, func(n *Node) bool {
		if n.Type == TextNode {
			return fn(n)
		}
		return true
	})
}
