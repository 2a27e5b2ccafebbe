package rendertree

import (
	"strings"
	"testing"
)

func TestText_FromSegments(t *testing.T) {
	tree := NewFromSegments([]string{"alpha ", "beta ", "gamma"})
	if got := tree.Text(); got != "alpha beta gamma" {
		t.Errorf("Text() = %q; want %q", got, "alpha beta gamma")
	}
	if n := len(tree.EnumerateTextNodes()); n != 3 {
		t.Errorf("EnumerateTextNodes() returned %d leaves; want 3", n)
	}
}

func TestLocateText(t *testing.T) {
	tree := NewFromSegments([]string{"alpha ", "beta gamma"})

	r, ok := tree.LocateText(6, 4) // "beta"
	if !ok {
		t.Fatal("LocateText failed")
	}
	if r.StartNode != r.EndNode {
		t.Error("range within one segment should resolve to one node")
	}
	if got := r.StartNode.Text[r.StartOffset:r.EndOffset]; got != "beta" {
		t.Errorf("located %q; want %q", got, "beta")
	}
}

func TestLocateText_AcrossSegments(t *testing.T) {
	tree := NewFromSegments([]string{"alpha ", "beta"})

	r, ok := tree.LocateText(4, 5) // "a bet"
	if !ok {
		t.Fatal("LocateText failed")
	}
	if r.StartNode == r.EndNode {
		t.Error("range should span two nodes")
	}
}

func TestLocateText_OutOfBounds(t *testing.T) {
	tree := New("short")
	if _, ok := tree.LocateText(3, 10); ok {
		t.Error("LocateText past end should fail")
	}
	if _, ok := tree.LocateText(-1, 2); ok {
		t.Error("LocateText with negative offset should fail")
	}
}

func TestWrap(t *testing.T) {
	tree := New("The path of liberation begins")
	text := tree.Text()

	start := strings.Index(text, "liberation")
	r, ok := tree.LocateText(start, len("liberation"))
	if !ok {
		t.Fatal("LocateText failed")
	}

	marker, err := tree.Wrap(r, MarkerSpec{ID: "note-1", Kind: "note", Panel: "note_editor"})
	if err != nil {
		t.Fatalf("Wrap error: %v", err)
	}
	if marker.Marker.ID != "note-1" {
		t.Errorf("marker id = %q; want note-1", marker.Marker.ID)
	}

	// Wrapping must not change the flattened text.
	if got := tree.Text(); got != text {
		t.Errorf("flattened text changed after Wrap: %q", got)
	}

	// The marker covers exactly the requested range.
	s, e, ok := tree.MarkerRange("note-1")
	if !ok {
		t.Fatal("MarkerRange failed")
	}
	if text[s:e] != "liberation" {
		t.Errorf("marker covers %q; want %q", text[s:e], "liberation")
	}
}

func TestWrap_AtTextStart(t *testing.T) {
	tree := New("liberation and beyond")
	r, _ := tree.LocateText(0, len("liberation"))
	if _, err := tree.Wrap(r, MarkerSpec{ID: "m1", Kind: "note"}); err != nil {
		t.Fatalf("Wrap at offset 0 error: %v", err)
	}
	if tree.Text() != "liberation and beyond" {
		t.Errorf("flattened text changed: %q", tree.Text())
	}
}

func TestWrap_AcrossSegments(t *testing.T) {
	// A range spanning two sibling text leaves wraps both under one marker.
	tree := NewFromSegments([]string{"alpha ", "beta"})
	r, _ := tree.LocateText(4, 5)
	if _, err := tree.Wrap(r, MarkerSpec{ID: "m1", Kind: "note"}); err != nil {
		t.Fatalf("Wrap error: %v", err)
	}
	s, e, _ := tree.MarkerRange("m1")
	if got := tree.Text()[s:e]; got != "a bet" {
		t.Errorf("marker covers %q; want %q", got, "a bet")
	}
}

func TestWrap_CrossingMarkerBoundaryFails(t *testing.T) {
	tree := New("one two three four")
	text := tree.Text()

	r1, _ := tree.LocateText(strings.Index(text, "two"), len("two three"))
	if _, err := tree.Wrap(r1, MarkerSpec{ID: "m1", Kind: "note"}); err != nil {
		t.Fatalf("first Wrap error: %v", err)
	}

	// Overlaps m1's right edge from outside: start inside the marker, end
	// beyond it.
	r2, ok := tree.LocateText(strings.Index(text, "three"), len("three four"))
	if !ok {
		t.Fatal("LocateText failed")
	}
	if _, err := tree.Wrap(r2, MarkerSpec{ID: "m2", Kind: "note"}); err == nil {
		t.Error("Wrap crossing a marker boundary should fail")
	}
}

func TestUnwrap(t *testing.T) {
	tree := New("The path of liberation begins")
	text := tree.Text()

	r, _ := tree.LocateText(strings.Index(text, "liberation"), len("liberation"))
	if _, err := tree.Wrap(r, MarkerSpec{ID: "note-1", Kind: "note"}); err != nil {
		t.Fatalf("Wrap error: %v", err)
	}

	if !tree.Unwrap("note-1") {
		t.Fatal("Unwrap returned false")
	}
	tree.Normalize()

	if tree.FindMarker("note-1") != nil {
		t.Error("marker still present after Unwrap")
	}
	if got := tree.Text(); got != text {
		t.Errorf("flattened text changed after Unwrap: %q", got)
	}
	// Normalize must leave a single merged leaf, not three fragments.
	if n := len(tree.EnumerateTextNodes()); n != 1 {
		t.Errorf("text nodes after Normalize = %d; want 1", n)
	}
}

func TestUnwrap_Missing(t *testing.T) {
	tree := New("text")
	if tree.Unwrap("ghost") {
		t.Error("Unwrap of unknown id should return false")
	}
}

func TestUnwrapKind(t *testing.T) {
	tree := New("one two three four five")
	text := tree.Text()

	for i, word := range []string{"one", "three", "five"} {
		r, _ := tree.LocateText(strings.Index(text, word), len(word))
		kind := "search"
		if i == 1 {
			kind = "note"
		}
		if _, err := tree.Wrap(r, MarkerSpec{ID: word, Kind: kind}); err != nil {
			t.Fatalf("Wrap %q error: %v", word, err)
		}
	}

	if removed := tree.UnwrapKind("search"); removed != 2 {
		t.Errorf("UnwrapKind removed %d; want 2", removed)
	}
	tree.Normalize()

	if tree.FindMarker("one") != nil || tree.FindMarker("five") != nil {
		t.Error("search markers should be gone")
	}
	if tree.FindMarker("three") == nil {
		t.Error("note marker should remain")
	}
	if got := tree.Text(); got != text {
		t.Errorf("flattened text changed: %q", got)
	}
}

func TestMarkers(t *testing.T) {
	tree := New("alpha beta gamma")
	text := tree.Text()

	for _, word := range []string{"alpha", "gamma"} {
		r, _ := tree.LocateText(strings.Index(text, word), len(word))
		if _, err := tree.Wrap(r, MarkerSpec{ID: word, Kind: "search"}); err != nil {
			t.Fatalf("Wrap error: %v", err)
		}
	}

	all := tree.Markers("")
	if len(all) != 2 {
		t.Fatalf("Markers(\"\") = %d; want 2", len(all))
	}
	// Document order.
	if all[0].Marker.ID != "alpha" || all[1].Marker.ID != "gamma" {
		t.Errorf("markers out of order: %s, %s", all[0].Marker.ID, all[1].Marker.ID)
	}
	if len(tree.Markers("note")) != 0 {
		t.Error("Markers(note) should be empty")
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	tree := NewFromSegments([]string{"a", "", "b", "c"})
	tree.Normalize()
	if n := len(tree.EnumerateTextNodes()); n != 1 {
		t.Fatalf("leaves after Normalize = %d; want 1", n)
	}
	if tree.Text() != "abc" {
		t.Errorf("Text() = %q; want %q", tree.Text(), "abc")
	}
	tree.Normalize()
	if n := len(tree.EnumerateTextNodes()); n != 1 {
		t.Errorf("Normalize is not idempotent: %d leaves", n)
	}
}

func TestWrap_RepeatedWrapUnwrapKeepsTextStable(t *testing.T) {
	tree := New("stable text never changes under markers")
	text := tree.Text()

	for i := 0; i < 5; i++ {
		r, ok := tree.LocateText(strings.Index(text, "never"), len("never"))
		if !ok {
			t.Fatalf("iteration %d: LocateText failed", i)
		}
		if _, err := tree.Wrap(r, MarkerSpec{ID: "m", Kind: "note"}); err != nil {
			t.Fatalf("iteration %d: Wrap error: %v", i, err)
		}
		tree.Unwrap("m")
		tree.Normalize()
		if tree.Text() != text {
			t.Fatalf("iteration %d: text drifted to %q", i, tree.Text())
		}
	}
}
