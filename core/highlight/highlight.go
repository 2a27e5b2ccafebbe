// Package highlight restores annotation markers into a rendered tree.
//
// The renderer is the only writer of markers. Restoration runs strictly after
// the volume's content is attached to the tree, and is idempotent: a marker
// that already exists for an annotation id is left alone. A failed restoration
// is logged and skipped; it never aborts rendering, and the underlying
// annotation is never deleted because a later content revision may resolve
// again.
package highlight

import (
	"strings"

	"github.com/FocuswithJustin/Lectern/core/anchor"
	"github.com/FocuswithJustin/Lectern/core/annotate"
	"github.com/FocuswithJustin/Lectern/core/rendertree"
	"github.com/FocuswithJustin/Lectern/internal/logging"
	"github.com/FocuswithJustin/Lectern/internal/panel"
)

// Marker kinds written by the renderer.
const (
	KindNote     = "note"
	KindBookmark = "bookmark"
	KindSearch   = "search"
)

// Renderer restores and removes highlight markers in one volume's render
// tree.
type Renderer struct {
	tree        *rendertree.Tree
	volumeIndex int
}

// NewRenderer creates a renderer over the tree of the given volume. The
// volume index is carried only for logging.
func NewRenderer(tree *rendertree.Tree, volumeIndex int) *Renderer {
	return &Renderer{tree: tree, volumeIndex: volumeIndex}
}

// RestoreNote wraps the note's selected text with a note marker. Returns
// false, after logging, when the address no longer resolves or the selected
// text cannot be found forward of it.
func (r *Renderer) RestoreNote(n annotate.Note) bool {
	if r.tree.FindMarker(n.ID) != nil {
		return true
	}
	start, length, ok := r.locate(n.ID, n.Address, n.SelectedText)
	if !ok {
		return false
	}
	return r.mark(n.ID, KindNote, panel.NoteEditor, start, length)
}

// RestoreBookmark wraps the bookmarked word with a bookmark marker.
func (r *Renderer) RestoreBookmark(b annotate.Bookmark) bool {
	if r.tree.FindMarker(b.ID) != nil {
		return true
	}
	start, length, ok := r.locate(b.ID, b.Address, b.Word)
	if !ok {
		return false
	}
	return r.mark(b.ID, KindBookmark, panel.BookmarkList, start, length)
}

// RestoreAll restores every note and bookmark of the renderer's volume,
// returning the number of markers now present for them. Items for other
// volumes are ignored.
func (r *Renderer) RestoreAll(notes []annotate.Note, bookmarks []annotate.Bookmark) int {
	restored := 0
	for _, n := range notes {
		if n.VolumeIndex == r.volumeIndex && r.RestoreNote(n) {
			restored++
		}
	}
	for _, b := range bookmarks {
		if b.VolumeIndex == r.volumeIndex && r.RestoreBookmark(b) {
			restored++
		}
	}
	return restored
}

// MarkSearch wraps a located search occurrence with a transient search
// marker. Search markers carry no durable annotation; Clear(KindSearch)
// removes them all.
func (r *Renderer) MarkSearch(id string, charOffset, length int) bool {
	if r.tree.FindMarker(id) != nil {
		return true
	}
	return r.mark(id, KindSearch, panel.SearchResults, charOffset, length)
}

// Remove unwraps the marker for an annotation id and re-normalizes the tree.
func (r *Renderer) Remove(id string) bool {
	if !r.tree.Unwrap(id) {
		return false
	}
	r.tree.Normalize()
	return true
}

// Clear removes every marker of the given kind ("" removes all) and
// re-normalizes the tree. Returns the number removed.
func (r *Renderer) Clear(kind string) int {
	removed := r.tree.UnwrapKind(kind)
	if removed > 0 {
		r.tree.Normalize()
	}
	return removed
}

// locate resolves an address in the tree's flattened text and finds the
// literal target text at or forward of the resolved anchor, never backward.
// An empty target falls back to the anchor token's own span.
func (r *Renderer) locate(id string, addr anchor.Address, target string) (start, length int, ok bool) {
	text := r.tree.Text()
	rng, err := anchor.Resolve(text, addr)
	if err != nil {
		logging.AddressEvent("restore_unresolved", r.volumeIndex, addr.WordIndex,
			"annotation_id", id, "error", err.Error())
		return 0, 0, false
	}
	if target == "" {
		return rng.Start, rng.Len(), true
	}

	at := strings.Index(text[rng.Start:], target)
	if at < 0 {
		logging.AddressEvent("restore_text_missing", r.volumeIndex, addr.WordIndex,
			"annotation_id", id)
		return 0, 0, false
	}
	return rng.Start + at, len(target), true
}

func (r *Renderer) mark(id, kind string, p panel.ID, start, length int) bool {
	loc, ok := r.tree.LocateText(start, length)
	if !ok {
		logging.AddressEvent("restore_range_outside_tree", r.volumeIndex, 0,
			"annotation_id", id, "offset", start, "length", length)
		return false
	}
	if _, err := r.tree.Wrap(loc, rendertree.MarkerSpec{ID: id, Kind: kind, Panel: string(p)}); err != nil {
		logging.AddressEvent("restore_wrap_failed", r.volumeIndex, 0,
			"annotation_id", id, "error", err.Error())
		return false
	}
	return true
}
