// Package syncmerge reconciles annotation snapshots across devices.
//
// Sync is whole-snapshot: each device pushes its complete annotation state
// and pulls the merged result. Merging is deterministic and idempotent, so
// any device can merge in any order and converge. Deletions always win over
// additions: tombstones are applied before any union, which is what makes an
// explicit delete stick even when another device still carries the item.
package syncmerge

import (
	"time"

	"github.com/FocuswithJustin/Lectern/core/annotate"
)

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = 1

// Snapshot is one device's complete annotation state at a point in time.
// Reading positions are deliberately absent: they are device-local.
type Snapshot struct {
	Version    int                  `json:"version"`
	DeviceID   string               `json:"device_id"`
	CreatedAt  time.Time            `json:"created_at"`
	Notes      []annotate.Note      `json:"notes"`
	Bookmarks  []annotate.Bookmark  `json:"bookmarks"`
	Tombstones []annotate.Tombstone `json:"tombstones"`
}
