package syncmerge

import (
	"regexp"
	"sort"

	"github.com/FocuswithJustin/Lectern/core/annotate"
)

// Config carries the merge heuristics. The radii mirror the annotation
// store's: two items within the radius are treated as the same location.
type Config struct {
	NoteMergeRadius     uint
	BookmarkMergeRadius uint
	NoteCap             int
	BookmarkCap         int
}

// DefaultConfig aligns the merge heuristics with the annotation store's
// defaults.
func DefaultConfig() Config {
	sc := annotate.DefaultConfig()
	return Config{
		NoteMergeRadius:     sc.BookmarkMergeRadius,
		BookmarkMergeRadius: sc.BookmarkMergeRadius,
		NoteCap:             sc.NoteCap,
		BookmarkCap:         sc.BookmarkCap,
	}
}

// Merger merges two snapshots into one.
type Merger struct {
	cfg Config
}

// NewMerger creates a merger with the given heuristics.
func NewMerger(cfg Config) *Merger {
	if cfg.NoteCap <= 0 || cfg.BookmarkCap <= 0 {
		def := DefaultConfig()
		if cfg.NoteCap <= 0 {
			cfg.NoteCap = def.NoteCap
		}
		if cfg.BookmarkCap <= 0 {
			cfg.BookmarkCap = def.BookmarkCap
		}
	}
	return &Merger{cfg: cfg}
}

// Merge reconciles two snapshots. Tombstones from both sides are applied
// before any item union, so a deletion on one device removes the item even if
// the other device re-uploads it. Merging is idempotent: merging the result
// with either input yields the result again.
func (m *Merger) Merge(a, b Snapshot) Snapshot {
	out := Snapshot{Version: SnapshotVersion}

	out.Tombstones = unionTombstones(a.Tombstones, b.Tombstones)
	dead := make(map[string]bool, len(out.Tombstones))
	for _, t := range out.Tombstones {
		dead[t.ItemID] = true
	}

	out.Notes = m.mergeNotes(a.Notes, b.Notes, dead)
	out.Bookmarks = m.mergeBookmarks(a.Bookmarks, b.Bookmarks, dead)
	return out
}

// unionTombstones unions tombstones by item id, keeping the earliest
// deletion time for determinism.
func unionTombstones(a, b []annotate.Tombstone) []annotate.Tombstone {
	byID := make(map[string]annotate.Tombstone, len(a)+len(b))
	for _, t := range append(append([]annotate.Tombstone(nil), a...), b...) {
		if prev, ok := byID[t.ItemID]; !ok || t.DeletedAt.Before(prev.DeletedAt) {
			byID[t.ItemID] = t
		}
	}
	out := make([]annotate.Tombstone, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DeletedAt.Equal(out[j].DeletedAt) {
			return out[i].DeletedAt.Before(out[j].DeletedAt)
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}

// mergeNotes unions surviving notes by id, then collapses distinct notes at
// the same location into one. The oldest note at a location keeps its
// identity; younger bodies are appended oldest-first under a heading carrying
// their creation time. A body already contained in the merged body is not
// appended again, which keeps re-merging a constituent against an
// already-merged note a no-op.
func (m *Merger) mergeNotes(a, b []annotate.Note, dead map[string]bool) []annotate.Note {
	byID := make(map[string]annotate.Note, len(a)+len(b))
	for _, n := range append(append([]annotate.Note(nil), a...), b...) {
		if dead[n.ID] {
			continue
		}
		if prev, ok := byID[n.ID]; !ok || n.UpdatedAt.After(prev.UpdatedAt) {
			byID[n.ID] = n
		}
	}

	candidates := make([]annotate.Note, 0, len(byID))
	for _, n := range byID {
		candidates = append(candidates, n)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})

	var merged []annotate.Note
	for _, n := range candidates {
		slot := -1
		for i := range merged {
			if m.sameNoteLocation(merged[i], n) {
				slot = i
				break
			}
		}
		if slot < 0 {
			merged = append(merged, n)
			continue
		}
		merged[slot] = absorbNote(merged[slot], n)
	}

	// Store convention: most recent first.
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].ID < merged[j].ID
	})
	return capPerVolume(merged, m.cfg.NoteCap, func(n annotate.Note) int { return n.VolumeIndex })
}

// sameNoteLocation reports whether two notes annotate the same selection:
// same volume, same chapter, same selected text, and addresses within the
// radius. Nearby notes on different selections are distinct and never
// collapsed.
func (m *Merger) sameNoteLocation(a, b annotate.Note) bool {
	return a.VolumeIndex == b.VolumeIndex &&
		a.ChapterAnchor == b.ChapterAnchor &&
		a.SelectedText == b.SelectedText &&
		tokenDistance(a.Address.WordIndex, b.Address.WordIndex) <= m.cfg.NoteMergeRadius
}

// absorbedHeading matches the timestamped headings absorbNote writes, so a
// merged body can be split back into the bodies it was assembled from.
var absorbedHeading = regexp.MustCompile(`(?:^|\n\n)\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}\]\n`)

// hasConstituent reports whether body is one of merged's constituent bodies:
// the original body, or a body appended under an absorbed-section heading.
// Exact equality only; a body that merely occurs as a substring of another is
// still a distinct note body.
func hasConstituent(merged, body string) bool {
	for _, part := range absorbedHeading.Split(merged, -1) {
		if part == body {
			return true
		}
	}
	return false
}

// absorbNote folds the younger note into the older one. The older note's
// identity and selection survive; the younger body is appended under a
// heading derived from its creation time so the merge stays deterministic.
// A body already absorbed is not appended again.
func absorbNote(older, younger annotate.Note) annotate.Note {
	if younger.Body != "" && !hasConstituent(older.Body, younger.Body) {
		heading := "[" + younger.CreatedAt.UTC().Format("2006-01-02 15:04") + "]"
		if older.Body == "" {
			older.Body = heading + "\n" + younger.Body
		} else {
			older.Body += "\n\n" + heading + "\n" + younger.Body
		}
	}
	if younger.UpdatedAt.After(older.UpdatedAt) {
		older.UpdatedAt = younger.UpdatedAt
	}
	return older
}

// mergeBookmarks unions surviving bookmarks by id, then applies the slot
// rule across devices: of several bookmarks within the radius, the most
// recently created wins.
func (m *Merger) mergeBookmarks(a, b []annotate.Bookmark, dead map[string]bool) []annotate.Bookmark {
	byID := make(map[string]annotate.Bookmark, len(a)+len(b))
	for _, bm := range append(append([]annotate.Bookmark(nil), a...), b...) {
		if dead[bm.ID] {
			continue
		}
		if prev, ok := byID[bm.ID]; !ok || bm.CreatedAt.After(prev.CreatedAt) {
			byID[bm.ID] = bm
		}
	}

	candidates := make([]annotate.Bookmark, 0, len(byID))
	for _, bm := range byID {
		candidates = append(candidates, bm)
	}
	// Newest first, so the first bookmark seen at a location is the winner.
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})

	var merged []annotate.Bookmark
	for _, bm := range candidates {
		taken := false
		for i := range merged {
			if merged[i].VolumeIndex == bm.VolumeIndex &&
				tokenDistance(merged[i].Address.WordIndex, bm.Address.WordIndex) <= m.cfg.BookmarkMergeRadius {
				taken = true
				break
			}
		}
		if !taken {
			merged = append(merged, bm)
		}
	}
	return capPerVolume(merged, m.cfg.BookmarkCap, func(b annotate.Bookmark) int { return b.VolumeIndex })
}

// capPerVolume trims a most-recent-first list to the per-volume cap.
func capPerVolume[T any](items []T, limit int, volume func(T) int) []T {
	counts := make(map[int]int)
	out := items[:0]
	for _, it := range items {
		v := volume(it)
		if counts[v] >= limit {
			continue
		}
		counts[v]++
		out = append(out, it)
	}
	return out
}

func tokenDistance(a, b uint) uint {
	if a > b {
		return a - b
	}
	return b - a
}
