package syncmerge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/FocuswithJustin/Lectern/core/annotate"
	"github.com/FocuswithJustin/Lectern/core/errors"
)

// fakeStore is an in-memory AnnotationStore.
type fakeStore struct {
	notes      []annotate.Note
	bookmarks  []annotate.Bookmark
	tombstones []annotate.Tombstone
}

func (f *fakeStore) Notes() []annotate.Note           { return append([]annotate.Note(nil), f.notes...) }
func (f *fakeStore) Bookmarks() []annotate.Bookmark   { return append([]annotate.Bookmark(nil), f.bookmarks...) }
func (f *fakeStore) Tombstones() []annotate.Tombstone { return append([]annotate.Tombstone(nil), f.tombstones...) }

func (f *fakeStore) ApplyMerged(notes []annotate.Note, bookmarks []annotate.Bookmark, tombstones []annotate.Tombstone) {
	f.notes = notes
	f.bookmarks = bookmarks
	f.tombstones = tombstones
}

func newSyncer(t *testing.T, remote Remote, store AnnotationStore, device string) *Syncer {
	t.Helper()
	s := NewSyncer(remote, store, NewMerger(DefaultConfig()), device)
	s.now = func() time.Time { return t0 }
	return s
}

func TestSync_FirstPush(t *testing.T) {
	remote := NewFSRemote(filepath.Join(t.TempDir(), "sync", "snapshot.bin"))
	store := &fakeStore{notes: []annotate.Note{mkNote("n1", 0, 10, "x", t0)}}

	res, err := newSyncer(t, remote, store, "desk").Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync error: %v", err)
	}
	if res.Mode != RefreshNone {
		t.Errorf("mode = %s; want none on first push", res.Mode)
	}

	// The remote now holds a decodable snapshot.
	blob, err := remote.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	snap, err := DecodeSnapshot(blob)
	if err != nil {
		t.Fatalf("DecodeSnapshot error: %v", err)
	}
	if len(snap.Notes) != 1 || snap.DeviceID != "desk" {
		t.Errorf("pushed snapshot = %+v", snap)
	}
}

func TestSync_TwoDevicesConverge(t *testing.T) {
	remote := NewFSRemote(filepath.Join(t.TempDir(), "snapshot.bin"))

	desk := &fakeStore{notes: []annotate.Note{mkNote("d1", 0, 100, "desk note", t0)}}
	tablet := &fakeStore{notes: []annotate.Note{mkNote("t1", 0, 9000, "tablet note", t0.Add(time.Minute))}}

	ctx := context.Background()
	if _, err := newSyncer(t, remote, desk, "desk").Sync(ctx); err != nil {
		t.Fatalf("desk sync: %v", err)
	}
	res, err := newSyncer(t, remote, tablet, "tablet").Sync(ctx)
	if err != nil {
		t.Fatalf("tablet sync: %v", err)
	}
	if res.Mode != RefreshIncremental || res.NotesAdded != 1 {
		t.Errorf("tablet result = %+v; want one incremental addition", res)
	}
	if len(tablet.notes) != 2 {
		t.Fatalf("tablet notes = %d; want 2", len(tablet.notes))
	}

	// Desk pulls the union on its next round.
	if _, err := newSyncer(t, remote, desk, "desk").Sync(ctx); err != nil {
		t.Fatalf("desk second sync: %v", err)
	}
	if len(desk.notes) != 2 {
		t.Errorf("desk notes = %d; want 2", len(desk.notes))
	}
}

func TestSync_DeletionPropagates(t *testing.T) {
	remote := NewFSRemote(filepath.Join(t.TempDir(), "snapshot.bin"))
	ctx := context.Background()

	shared := mkNote("n1", 0, 100, "x", t0)
	desk := &fakeStore{notes: []annotate.Note{shared}}
	tablet := &fakeStore{
		tombstones: []annotate.Tombstone{{ItemID: "n1", Kind: annotate.KindNote, DeletedAt: t0.Add(time.Minute)}},
	}

	if _, err := newSyncer(t, remote, desk, "desk").Sync(ctx); err != nil {
		t.Fatalf("desk sync: %v", err)
	}
	if _, err := newSyncer(t, remote, tablet, "tablet").Sync(ctx); err != nil {
		t.Fatalf("tablet sync: %v", err)
	}

	res, err := newSyncer(t, remote, desk, "desk").Sync(ctx)
	if err != nil {
		t.Fatalf("desk second sync: %v", err)
	}
	if res.Mode != RefreshFull || res.NotesRemoved != 1 {
		t.Errorf("result = %+v; want a full refresh with one removal", res)
	}
	if len(desk.notes) != 0 {
		t.Error("deletion should have propagated to the desk")
	}
}

func TestSync_RemoteFailureLeavesLocalUntouched(t *testing.T) {
	store := &fakeStore{notes: []annotate.Note{mkNote("n1", 0, 10, "x", t0)}}
	remote := &failingRemote{}

	if _, err := newSyncer(t, remote, store, "desk").Sync(context.Background()); err == nil {
		t.Fatal("Sync should surface the remote failure")
	}
	if len(store.notes) != 1 {
		t.Error("local state must be untouched after a failed sync")
	}
}

type failingRemote struct{}

func (f *failingRemote) Fetch(ctx context.Context) ([]byte, error) {
	return nil, errors.NewSync("fetch", true, errors.ErrSyncUnavailable)
}
func (f *failingRemote) Store(ctx context.Context, blob []byte) error {
	return errors.NewSync("store", true, errors.ErrSyncUnavailable)
}

func TestHTTPRemote(t *testing.T) {
	var mu sync.Mutex
	var stored []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			if stored == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(stored)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			stored = body
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	remote := NewHTTPRemote(srv.URL, "secret", srv.Client())
	ctx := context.Background()

	if _, err := remote.Fetch(ctx); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Fetch of empty remote = %v; want not-found", err)
	}

	store := &fakeStore{notes: []annotate.Note{mkNote("n1", 0, 10, "x", t0)}}
	if _, err := newSyncer(t, remote, store, "desk").Sync(ctx); err != nil {
		t.Fatalf("Sync over HTTP error: %v", err)
	}

	blob, err := remote.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if snap, err := DecodeSnapshot(blob); err != nil || len(snap.Notes) != 1 {
		t.Errorf("decoded remote snapshot = %+v, %v", snap, err)
	}
}
