// Package panel defines the closed registry of side-panel identifiers.
// Highlight markers carry a panel id so activating a marker opens the right
// panel; keeping the set closed means a stored id can always be validated
// before use.
package panel

// ID names a side panel.
type ID string

const (
	// NoteEditor edits the note attached to the activated marker.
	NoteEditor ID = "note-editor"
	// BookmarkList shows the bookmarks of the current volume.
	BookmarkList ID = "bookmark-list"
	// SearchResults shows the active search result list.
	SearchResults ID = "search-results"
	// ReadingPosition shows the stored last-read positions.
	ReadingPosition ID = "reading-position"
)

var registry = map[ID]string{
	NoteEditor:      "Note editor",
	BookmarkList:    "Bookmarks",
	SearchResults:   "Search results",
	ReadingPosition: "Reading position",
}

// Valid reports whether id names a registered panel.
func Valid(id ID) bool {
	_, ok := registry[id]
	return ok
}

// Title returns the display title of a registered panel.
func Title(id ID) (string, bool) {
	t, ok := registry[id]
	return t, ok
}

// All returns every registered panel id in a fixed order.
func All() []ID {
	return []ID{NoteEditor, BookmarkList, SearchResults, ReadingPosition}
}
