// Package session wires the reading surface together: one open volume with
// its render tree and highlight renderer, the annotation store, search, and
// the optional sync round.
//
// The session enforces the two ordering contracts the lower layers rely on:
// a selection's word address is computed before its marker is inserted, and
// annotation markers are restored only after a volume's content is attached
// to the tree. Reading-position writes are debounced so scrolling does not
// hammer the store.
package session

import (
	"context"
	"strconv"
	"time"

	"github.com/FocuswithJustin/Lectern/core/anchor"
	"github.com/FocuswithJustin/Lectern/core/annotate"
	"github.com/FocuswithJustin/Lectern/core/content"
	"github.com/FocuswithJustin/Lectern/core/errors"
	"github.com/FocuswithJustin/Lectern/core/highlight"
	"github.com/FocuswithJustin/Lectern/core/rendertree"
	"github.com/FocuswithJustin/Lectern/core/search"
	"github.com/FocuswithJustin/Lectern/core/syncmerge"
	"github.com/FocuswithJustin/Lectern/internal/logging"
	"github.com/FocuswithJustin/Lectern/internal/sched"
)

// positionSlot is the debouncer slot for reading-position writes.
const positionSlot = "reading-position"

// Config carries session construction options.
type Config struct {
	// PositionDebounce is the trailing delay for reading-position writes.
	PositionDebounce time.Duration

	// Remote enables sync when set.
	Remote syncmerge.Remote

	// DeviceID identifies this device in sync snapshots.
	DeviceID string
}

// Session is one reader's live state over a library.
type Session struct {
	library  *content.Library
	store    *annotate.Store
	resolver *anchor.Resolver
	engine   *search.Engine
	debounce *sched.Debouncer
	syncer   *syncmerge.Syncer

	current  int
	tree     *rendertree.Tree
	renderer *highlight.Renderer
}

// New creates a session over an already-loaded library and annotation store.
func New(library *content.Library, store *annotate.Store, cfg Config) *Session {
	if cfg.PositionDebounce <= 0 {
		cfg.PositionDebounce = 2 * time.Second
	}
	s := &Session{
		library:  library,
		store:    store,
		resolver: anchor.NewResolver(library),
		engine:   search.NewEngine(library),
		debounce: sched.NewDebouncer(cfg.PositionDebounce),
		current:  -1,
	}
	if cfg.Remote != nil {
		s.syncer = syncmerge.NewSyncer(cfg.Remote, store, syncmerge.NewMerger(syncmerge.DefaultConfig()), cfg.DeviceID)
	}
	return s
}

// OpenVolume attaches a volume's content to a fresh render tree and restores
// its annotation markers. Restoration strictly follows attachment.
func (s *Session) OpenVolume(volumeIndex int) error {
	c, err := s.library.Content(volumeIndex)
	if err != nil {
		return err
	}

	s.current = volumeIndex
	s.tree = rendertree.NewFromSegments(c.Segments())
	s.renderer = highlight.NewRenderer(s.tree, volumeIndex)

	restored := s.renderer.RestoreAll(
		s.store.NotesForVolume(volumeIndex),
		s.store.BookmarksForVolume(volumeIndex),
	)
	logging.Info("volume opened",
		"volume", volumeIndex,
		"title", c.Title,
		"markers_restored", restored)
	return nil
}

// CurrentVolume returns the open volume's index, or -1.
func (s *Session) CurrentVolume() int {
	return s.current
}

// Tree returns the open volume's render tree.
func (s *Session) Tree() *rendertree.Tree {
	return s.tree
}

// Renderer returns the open volume's highlight renderer.
func (s *Session) Renderer() *highlight.Renderer {
	return s.renderer
}

// CreateNote turns a live selection into a stored note and its marker. The
// address is computed from the flattened text before the marker is inserted;
// inserting first would shift the token stream the address counts over.
func (s *Session) CreateNote(rangeStart, rangeEnd int, body string) (*annotate.Note, error) {
	if err := s.requireVolume(); err != nil {
		return nil, err
	}
	text := s.tree.Text()
	if rangeStart < 0 || rangeEnd > len(text) || rangeStart >= rangeEnd {
		return nil, errors.Wrap(errors.ErrInvalidInput, "selection range out of bounds")
	}

	addr, err := anchor.Compute(text, rangeStart)
	if err != nil {
		return nil, err
	}
	span := s.chapterAt(rangeStart)
	note := s.store.AddNote(s.current, span.AnchorID, span.Title, text[rangeStart:rangeEnd], body, addr)

	if !s.renderer.RestoreNote(*note) {
		logging.AddressEvent("note_marker_deferred", s.current, addr.WordIndex, "note_id", note.ID)
	}
	return note, nil
}

// UpdateNoteBody rewrites a note's body.
func (s *Session) UpdateNoteBody(id, body string) error {
	return s.store.UpdateNoteBody(id, body)
}

// DeleteNote removes a note and its marker.
func (s *Session) DeleteNote(id string) error {
	if err := s.store.DeleteNote(id); err != nil {
		return err
	}
	if s.renderer != nil {
		s.renderer.Remove(id)
	}
	return nil
}

// CaptureBookmark bookmarks the word at the given flattened-text offset.
// When the store merges the capture into an existing nearby slot, the slot's
// marker is moved rather than duplicated.
func (s *Session) CaptureBookmark(charOffset int) (*annotate.Bookmark, error) {
	if err := s.requireVolume(); err != nil {
		return nil, err
	}
	text := s.tree.Text()
	addr, err := anchor.Compute(text, charOffset)
	if err != nil {
		return nil, err
	}

	span := s.chapterAt(charOffset)
	bm := s.store.AddBookmark(s.current, span.AnchorID, span.Title, addr.AnchorToken, addr)

	s.renderer.Remove(bm.ID)
	if !s.renderer.RestoreBookmark(*bm) {
		logging.AddressEvent("bookmark_marker_deferred", s.current, addr.WordIndex, "bookmark_id", bm.ID)
	}
	return bm, nil
}

// DeleteBookmark removes a bookmark and its marker.
func (s *Session) DeleteBookmark(id string) error {
	if err := s.store.DeleteBookmark(id); err != nil {
		return err
	}
	if s.renderer != nil {
		s.renderer.Remove(id)
	}
	return nil
}

// SetReadingPosition records the reading position at the given offset. Writes
// are debounced; the last position of a scroll burst wins.
func (s *Session) SetReadingPosition(charOffset int) error {
	if err := s.requireVolume(); err != nil {
		return err
	}
	addr, err := anchor.Compute(s.tree.Text(), charOffset)
	if err != nil {
		return err
	}
	volume := s.current
	s.debounce.Schedule(positionSlot, func() {
		s.store.SaveReadingPosition(volume, addr)
	})
	return nil
}

// ReadingPosition resolves the stored position of the open volume back to a
// character range in its flattened text.
func (s *Session) ReadingPosition() (anchor.Range, bool) {
	if s.current < 0 {
		return anchor.Range{}, false
	}
	p, ok := s.store.Position(s.current)
	if !ok {
		return anchor.Range{}, false
	}
	rng, err := s.resolver.ResolveAddress(s.current, p.Address)
	if err != nil {
		logging.AddressEvent("position_unresolved", s.current, p.Address.WordIndex, "error", err.Error())
		return anchor.Range{}, false
	}
	return rng, true
}

// Search runs a query string against the library.
func (s *Session) Search(query string) ([]search.Result, error) {
	return s.engine.Search(search.ParseQuery(query))
}

// NavigateTo opens the result's volume if necessary, highlights the current
// occurrences of its query pattern and returns the focused marker id.
func (s *Session) NavigateTo(query string, result search.Result) (string, error) {
	if s.current != result.VolumeIndex {
		if err := s.OpenVolume(result.VolumeIndex); err != nil {
			return "", err
		}
	}
	re, err := search.CompilePattern(search.ParseQuery(query).Pattern())
	if err != nil {
		return "", err
	}
	c, err := s.library.Content(s.current)
	if err != nil {
		return "", err
	}
	search.ClearHighlights(s.renderer)
	focus, ok := search.NavigateTo(s.renderer, s.tree, c, re, result)
	if !ok {
		return "", errors.NewNotFound("search occurrence", query)
	}
	return focus, nil
}

// ClearSearchHighlights drops all transient search markers.
func (s *Session) ClearSearchHighlights() int {
	if s.renderer == nil {
		return 0
	}
	return search.ClearHighlights(s.renderer)
}

// Sync runs one sync round and refreshes the open volume's markers according
// to the result: removals and rewrites rebuild all markers, pure additions
// only restore the new ones. Pending position writes are flushed first so the
// pushed snapshot is current.
func (s *Session) Sync(ctx context.Context) (syncmerge.Result, error) {
	if s.syncer == nil {
		return syncmerge.Result{}, errors.Wrap(errors.ErrSyncUnavailable, "no sync remote configured")
	}
	s.debounce.Flush()

	res, err := s.syncer.Sync(ctx)
	if err != nil {
		return res, err
	}
	s.refresh(res.Mode)
	return res, nil
}

func (s *Session) refresh(mode syncmerge.RefreshMode) {
	if s.renderer == nil || mode == syncmerge.RefreshNone {
		return
	}
	if mode == syncmerge.RefreshFull {
		s.renderer.Clear(highlight.KindNote)
		s.renderer.Clear(highlight.KindBookmark)
	}
	s.renderer.RestoreAll(
		s.store.NotesForVolume(s.current),
		s.store.BookmarksForVolume(s.current),
	)
}

// Close flushes pending writes and stops the scheduler.
func (s *Session) Close() {
	s.debounce.Flush()
	s.debounce.Stop()
}

func (s *Session) requireVolume() error {
	if s.current < 0 || s.tree == nil {
		return errors.Wrap(errors.ErrInvalidInput, "no volume open")
	}
	return nil
}

// chapterAt maps a flattened-text offset to its chapter, tolerating volumes
// without a chapter table.
func (s *Session) chapterAt(offset int) content.ChapterSpan {
	c, err := s.library.Content(s.current)
	if err != nil {
		logging.StoreEvent("chapter_lookup_failed", strconv.Itoa(s.current), err)
		return content.ChapterSpan{}
	}
	span, ok := c.ChapterAt(offset)
	if !ok {
		return content.ChapterSpan{}
	}
	return span
}
