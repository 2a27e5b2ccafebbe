package annotate

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/Lectern/core/anchor"
	"github.com/FocuswithJustin/Lectern/core/errors"
	"github.com/FocuswithJustin/Lectern/internal/logging"
)

// Storage is the durable key-document store the annotation store persists
// into. Load reports absence via its boolean; both operations may fail but
// the store recovers rather than propagating.
type Storage interface {
	Load(key string, v any) (bool, error)
	Save(key string, v any) error
}

// Durable store keys, one whole-collection document per kind.
const (
	keyNotes      = "notes"
	keyBookmarks  = "bookmarks"
	keyPositions  = "positions"
	keyTombstones = "tombstones"
)

// Config carries the store's capacity and merge heuristics. The defaults
// mirror long-standing reader behavior; they are configurable rather than
// fixed because no documented justification for the exact values exists.
type Config struct {
	// NoteCap is the maximum notes kept per volume (oldest evicted beyond it).
	NoteCap int

	// BookmarkCap is the maximum bookmarks kept per volume.
	BookmarkCap int

	// BookmarkMergeRadius is the token distance within which a new bookmark
	// overwrites an existing one in place instead of appending.
	BookmarkMergeRadius uint
}

// DefaultConfig returns the standard caps and merge radius.
func DefaultConfig() Config {
	return Config{
		NoteCap:             50,
		BookmarkCap:         10,
		BookmarkMergeRadius: 10,
	}
}

// Store owns notes, bookmarks, reading positions and tombstones. All lists
// are kept most-recent-first. Every mutation persists the affected
// collection eagerly; persistence failures are logged, never surfaced.
type Store struct {
	mu      sync.Mutex
	storage Storage
	cfg     Config

	now   func() time.Time
	newID func() string

	notes      []Note
	bookmarks  []Bookmark
	positions  map[int]ReadingPosition
	tombstones []Tombstone
}

// NewStore creates a store over the given durable storage, loading all
// collections eagerly. Absent or malformed documents fall back to empty
// collections; NewStore never fails.
func NewStore(storage Storage, cfg Config) *Store {
	if cfg.NoteCap <= 0 {
		cfg.NoteCap = DefaultConfig().NoteCap
	}
	if cfg.BookmarkCap <= 0 {
		cfg.BookmarkCap = DefaultConfig().BookmarkCap
	}

	s := &Store{
		storage:   storage,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
		positions: make(map[int]ReadingPosition),
	}
	s.load(keyNotes, &s.notes)
	s.load(keyBookmarks, &s.bookmarks)
	s.load(keyPositions, &s.positions)
	s.load(keyTombstones, &s.tombstones)
	if s.positions == nil {
		s.positions = make(map[int]ReadingPosition)
	}
	return s
}

func (s *Store) load(key string, v any) {
	if _, err := s.storage.Load(key, v); err != nil {
		logging.StoreEvent("load_fallback_empty", key, err)
	}
}

func (s *Store) persist(key string, v any) {
	if err := s.storage.Save(key, v); err != nil {
		logging.StoreEvent("save_failed", key, err)
	}
}

// AddNote creates a note for a live selection. The address must have been
// computed before any marker was inserted for this selection. Notes beyond
// the per-volume cap evict the oldest without tombstoning.
func (s *Store) AddNote(volumeIndex int, chapterAnchor, chapterTitle, selectedText, body string, addr anchor.Address) *Note {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	note := Note{
		ID:            s.newID(),
		VolumeIndex:   volumeIndex,
		ChapterAnchor: chapterAnchor,
		ChapterTitle:  chapterTitle,
		SelectedText:  selectedText,
		Body:          body,
		CreatedAt:     now,
		UpdatedAt:     now,
		Address:       addr,
	}
	s.notes = append([]Note{note}, s.notes...)
	s.evictNotes(volumeIndex)
	s.persist(keyNotes, s.notes)
	return &note
}

// evictNotes drops the oldest notes of a volume beyond the cap. Eviction is
// local-only and produces no tombstone.
func (s *Store) evictNotes(volumeIndex int) {
	count := 0
	for i := 0; i < len(s.notes); i++ {
		if s.notes[i].VolumeIndex != volumeIndex {
			continue
		}
		count++
		if count > s.cfg.NoteCap {
			s.notes = append(s.notes[:i], s.notes[i+1:]...)
			i--
		}
	}
}

// UpdateNoteBody replaces a note's body and bumps its timestamp.
func (s *Store) UpdateNoteBody(id, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notes {
		if s.notes[i].ID == id {
			s.notes[i].Body = body
			s.notes[i].UpdatedAt = s.now()
			s.persist(keyNotes, s.notes)
			return nil
		}
	}
	return errors.NewNotFound("note", id)
}

// DeleteNote removes a note and records a tombstone.
func (s *Store) DeleteNote(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notes {
		if s.notes[i].ID == id {
			s.notes = append(s.notes[:i], s.notes[i+1:]...)
			s.tombstones = append(s.tombstones, Tombstone{ItemID: id, Kind: KindNote, DeletedAt: s.now()})
			s.persist(keyNotes, s.notes)
			s.persist(keyTombstones, s.tombstones)
			return nil
		}
	}
	return errors.NewNotFound("note", id)
}

// AddBookmark captures a bookmark at the given address. If an existing
// bookmark for the same volume lies within the merge radius, that slot is
// overwritten in place, keeping its position in the most-recent-first list
// and its identity. Otherwise the bookmark is prepended and the volume's
// oldest entries are evicted beyond the cap.
func (s *Store) AddBookmark(volumeIndex int, chapterAnchor, chapterTitle, word string, addr anchor.Address) *Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.bookmarks {
		b := &s.bookmarks[i]
		if b.VolumeIndex != volumeIndex {
			continue
		}
		if tokenDistance(b.Address.WordIndex, addr.WordIndex) <= s.cfg.BookmarkMergeRadius {
			b.ChapterAnchor = chapterAnchor
			b.ChapterTitle = chapterTitle
			b.Word = word
			b.Address = addr
			b.CreatedAt = s.now()
			s.persist(keyBookmarks, s.bookmarks)
			out := *b
			return &out
		}
	}

	bm := Bookmark{
		ID:            s.newID(),
		VolumeIndex:   volumeIndex,
		ChapterAnchor: chapterAnchor,
		ChapterTitle:  chapterTitle,
		Word:          word,
		CreatedAt:     s.now(),
		Address:       addr,
	}
	s.bookmarks = append([]Bookmark{bm}, s.bookmarks...)
	s.evictBookmarks(volumeIndex)
	s.persist(keyBookmarks, s.bookmarks)
	return &bm
}

func (s *Store) evictBookmarks(volumeIndex int) {
	count := 0
	for i := 0; i < len(s.bookmarks); i++ {
		if s.bookmarks[i].VolumeIndex != volumeIndex {
			continue
		}
		count++
		if count > s.cfg.BookmarkCap {
			s.bookmarks = append(s.bookmarks[:i], s.bookmarks[i+1:]...)
			i--
		}
	}
}

// DeleteBookmark removes a bookmark and records a tombstone.
func (s *Store) DeleteBookmark(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.bookmarks {
		if s.bookmarks[i].ID == id {
			s.bookmarks = append(s.bookmarks[:i], s.bookmarks[i+1:]...)
			s.tombstones = append(s.tombstones, Tombstone{ItemID: id, Kind: KindBookmark, DeletedAt: s.now()})
			s.persist(keyBookmarks, s.bookmarks)
			s.persist(keyTombstones, s.tombstones)
			return nil
		}
	}
	return errors.NewNotFound("bookmark", id)
}

// SaveReadingPosition overwrites the single reading-position slot for a
// volume.
func (s *Store) SaveReadingPosition(volumeIndex int, addr anchor.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[volumeIndex] = ReadingPosition{
		VolumeIndex: volumeIndex,
		Address:     addr,
		UpdatedAt:   s.now(),
	}
	s.persist(keyPositions, s.positions)
}

// Position returns the reading position for a volume, if one is stored.
func (s *Store) Position(volumeIndex int) (ReadingPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[volumeIndex]
	return p, ok
}

// Notes returns a copy of all notes, most recent first. Callers must re-read
// after a sync merge rather than hold long-lived copies.
func (s *Store) Notes() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Note(nil), s.notes...)
}

// NotesForVolume returns a copy of the notes for one volume, most recent
// first.
func (s *Store) NotesForVolume(volumeIndex int) []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Note
	for _, n := range s.notes {
		if n.VolumeIndex == volumeIndex {
			out = append(out, n)
		}
	}
	return out
}

// NoteByID returns a copy of the identified note.
func (s *Store) NoteByID(id string) (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notes {
		if n.ID == id {
			return n, true
		}
	}
	return Note{}, false
}

// Bookmarks returns a copy of all bookmarks, most recent first.
func (s *Store) Bookmarks() []Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Bookmark(nil), s.bookmarks...)
}

// BookmarksForVolume returns a copy of the bookmarks for one volume, most
// recent first.
func (s *Store) BookmarksForVolume(volumeIndex int) []Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Bookmark
	for _, b := range s.bookmarks {
		if b.VolumeIndex == volumeIndex {
			out = append(out, b)
		}
	}
	return out
}

// Tombstones returns a copy of the deletion tombstones.
func (s *Store) Tombstones() []Tombstone {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Tombstone(nil), s.tombstones...)
}

// ApplyMerged replaces the store's notes, bookmarks and tombstones with the
// result of a sync merge and persists everything. The reading positions are
// untouched: they are device-local.
func (s *Store) ApplyMerged(notes []Note, bookmarks []Bookmark, tombstones []Tombstone) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notes = append([]Note(nil), notes...)
	s.bookmarks = append([]Bookmark(nil), bookmarks...)
	s.tombstones = append([]Tombstone(nil), tombstones...)
	s.persist(keyNotes, s.notes)
	s.persist(keyBookmarks, s.bookmarks)
	s.persist(keyTombstones, s.tombstones)
}

// tokenDistance is the absolute difference of two word indices.
func tokenDistance(a, b uint) uint {
	if a > b {
		return a - b
	}
	return b - a
}
