package syncmerge

import (
	"context"
	"time"

	"github.com/FocuswithJustin/Lectern/core/annotate"
	"github.com/FocuswithJustin/Lectern/core/errors"
	"github.com/FocuswithJustin/Lectern/internal/logging"
)

// AnnotationStore is the slice of the annotation store the syncer needs.
type AnnotationStore interface {
	Notes() []annotate.Note
	Bookmarks() []annotate.Bookmark
	Tombstones() []annotate.Tombstone
	ApplyMerged(notes []annotate.Note, bookmarks []annotate.Bookmark, tombstones []annotate.Tombstone)
}

// RefreshMode tells the rendering layer how much work a completed sync left
// behind.
type RefreshMode int

const (
	// RefreshNone: the merge changed nothing locally.
	RefreshNone RefreshMode = iota
	// RefreshIncremental: only new items arrived; restoring their markers is
	// enough.
	RefreshIncremental
	// RefreshFull: items were removed or rewritten; existing markers must be
	// torn down and restored from scratch.
	RefreshFull
)

func (m RefreshMode) String() string {
	switch m {
	case RefreshIncremental:
		return "incremental"
	case RefreshFull:
		return "full"
	default:
		return "none"
	}
}

// Result summarizes a completed sync.
type Result struct {
	Mode             RefreshMode `json:"mode"`
	NotesAdded       int         `json:"notes_added"`
	NotesRemoved     int         `json:"notes_removed"`
	NotesRewritten   int         `json:"notes_rewritten"`
	BookmarksAdded   int         `json:"bookmarks_added"`
	BookmarksRemoved int         `json:"bookmarks_removed"`
}

// Syncer orchestrates one sync round: pull the remote snapshot, merge it with
// local state, push the merged snapshot back and apply it locally.
type Syncer struct {
	remote   Remote
	store    AnnotationStore
	merger   *Merger
	deviceID string
	now      func() time.Time
}

// NewSyncer creates a syncer for the given device over remote and store.
func NewSyncer(remote Remote, store AnnotationStore, merger *Merger, deviceID string) *Syncer {
	return &Syncer{
		remote:   remote,
		store:    store,
		merger:   merger,
		deviceID: deviceID,
		now:      time.Now,
	}
}

// Snapshot captures the store's current state as a pushable snapshot.
func (s *Syncer) Snapshot() Snapshot {
	return Snapshot{
		Version:    SnapshotVersion,
		DeviceID:   s.deviceID,
		CreatedAt:  s.now().UTC(),
		Notes:      s.store.Notes(),
		Bookmarks:  s.store.Bookmarks(),
		Tombstones: s.store.Tombstones(),
	}
}

// Sync runs one full round. A missing remote snapshot is the first-sync case:
// the local state is pushed as-is. Any remote failure leaves local state
// untouched; annotations keep working offline and the next round retries.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	local := s.Snapshot()
	logging.SyncEvent("pull", "device", s.deviceID)

	merged := local
	blob, err := s.remote.Fetch(ctx)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		logging.SyncEvent("pull_empty", "device", s.deviceID)
	case err != nil:
		logging.SyncError("pull", err)
		return Result{}, err
	default:
		remote, derr := DecodeSnapshot(blob)
		if derr != nil {
			logging.SyncError("decode", derr)
			return Result{}, derr
		}
		merged = s.merger.Merge(local, remote)
	}
	merged.DeviceID = s.deviceID
	merged.CreatedAt = s.now().UTC()

	out, err := EncodeSnapshot(merged)
	if err != nil {
		return Result{}, err
	}
	if err := s.remote.Store(ctx, out); err != nil {
		logging.SyncError("push", err)
		return Result{}, err
	}

	s.store.ApplyMerged(merged.Notes, merged.Bookmarks, merged.Tombstones)

	res := diff(local, merged)
	logging.SyncEvent("applied",
		"mode", res.Mode.String(),
		"notes_added", res.NotesAdded,
		"notes_removed", res.NotesRemoved,
		"bookmarks_added", res.BookmarksAdded,
		"bookmarks_removed", res.BookmarksRemoved)
	return res, nil
}

// diff compares the pre-merge and post-merge snapshots to decide the refresh
// mode: removals or rewrites force a full marker rebuild, pure additions only
// need the new markers restored.
func diff(local, merged Snapshot) Result {
	var res Result

	localNotes := make(map[string]annotate.Note, len(local.Notes))
	for _, n := range local.Notes {
		localNotes[n.ID] = n
	}
	mergedNotes := make(map[string]annotate.Note, len(merged.Notes))
	for _, n := range merged.Notes {
		mergedNotes[n.ID] = n
		prev, ok := localNotes[n.ID]
		if !ok {
			res.NotesAdded++
		} else if prev.Body != n.Body {
			res.NotesRewritten++
		}
	}
	for id := range localNotes {
		if _, ok := mergedNotes[id]; !ok {
			res.NotesRemoved++
		}
	}

	localBMs := make(map[string]bool, len(local.Bookmarks))
	for _, b := range local.Bookmarks {
		localBMs[b.ID] = true
	}
	mergedBMs := make(map[string]bool, len(merged.Bookmarks))
	for _, b := range merged.Bookmarks {
		mergedBMs[b.ID] = true
		if !localBMs[b.ID] {
			res.BookmarksAdded++
		}
	}
	for id := range localBMs {
		if !mergedBMs[id] {
			res.BookmarksRemoved++
		}
	}

	switch {
	case res.NotesRemoved > 0 || res.NotesRewritten > 0 || res.BookmarksRemoved > 0:
		res.Mode = RefreshFull
	case res.NotesAdded > 0 || res.BookmarksAdded > 0:
		res.Mode = RefreshIncremental
	default:
		res.Mode = RefreshNone
	}
	return res
}
