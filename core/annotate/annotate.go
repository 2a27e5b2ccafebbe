// Package annotate owns the user's annotations: notes, bookmarks and the
// per-volume reading position, together with their durable persistence and
// deletion tombstones.
//
// Annotations are created only from a live selection in the currently
// rendered volume, and always after the word address for the selection has
// been computed (the ordering contract of the addressing layer). The store
// persists each collection eagerly and in full on every mutation; loads never
// fail outward, they fall back to an empty structure so a corrupt document
// can never block reading.
package annotate

import (
	"time"

	"github.com/FocuswithJustin/Lectern/core/anchor"
)

// Kind distinguishes the annotation kinds that share tombstone handling.
type Kind string

const (
	// KindNote is a user note attached to a text selection.
	KindNote Kind = "note"
	// KindBookmark is a positional bookmark.
	KindBookmark Kind = "bookmark"
)

// Note is a user note attached to a selected range of a volume.
type Note struct {
	ID            string         `json:"id"`
	VolumeIndex   int            `json:"volume_index"`
	ChapterAnchor string         `json:"chapter_anchor"`
	ChapterTitle  string         `json:"chapter_title"`
	SelectedText  string         `json:"selected_text"`
	Body          string         `json:"body"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Address       anchor.Address `json:"address"`
}

// Bookmark marks a position in a volume, anchored to a single word.
type Bookmark struct {
	ID            string         `json:"id"`
	VolumeIndex   int            `json:"volume_index"`
	ChapterAnchor string         `json:"chapter_anchor"`
	ChapterTitle  string         `json:"chapter_title"`
	Word          string         `json:"word"`
	CreatedAt     time.Time      `json:"created_at"`
	Address       anchor.Address `json:"address"`
}

// ReadingPosition is the single "last read" slot kept per volume.
type ReadingPosition struct {
	VolumeIndex int            `json:"volume_index"`
	Address     anchor.Address `json:"address"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Tombstone records an explicit annotation deletion so merges are
// deletion-aware. Cap eviction is a local-only effect and produces no
// tombstone.
type Tombstone struct {
	ItemID    string    `json:"item_id"`
	Kind      Kind      `json:"kind"`
	DeletedAt time.Time `json:"deleted_at"`
}
