package annotate

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/Lectern/core/errors"
)

// DocumentVersion is the current export document version.
const DocumentVersion = 1

// Document is the versioned envelope for annotation import/export files.
type Document struct {
	Type      string          `json:"type"` // "notes" or "bookmarks"
	Version   int             `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// xzMagic is the header of an xz stream; exports may optionally be
// compressed and imports detect either form.
var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

func docType(kind Kind) string {
	if kind == KindBookmark {
		return "bookmarks"
	}
	return "notes"
}

// Export serializes the collection of the given kind into a versioned
// document.
func (s *Store) Export(kind Kind) ([]byte, error) {
	s.mu.Lock()
	var data []byte
	var err error
	switch kind {
	case KindNote:
		data, err = json.Marshal(s.notes)
	case KindBookmark:
		data, err = json.Marshal(s.bookmarks)
	default:
		err = errors.NewImport("", string(kind), "unknown annotation kind")
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	doc := Document{
		Type:      docType(kind),
		Version:   DocumentVersion,
		Timestamp: s.now().UTC(),
		Data:      data,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ExportCompressed is Export with an xz-compressed result, for archival.
func (s *Store) ExportCompressed(kind Kind) ([]byte, error) {
	raw, err := s.Export(kind)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, errors.Wrap(err, "compressing export")
	}
	if _, err := w.Write(raw); err != nil {
		return nil, errors.Wrap(err, "compressing export")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "compressing export")
	}
	return buf.Bytes(), nil
}

// Import merges a previously exported document of the expected kind into the
// store. Validation is all-or-nothing: a wrong document type or malformed
// payload rejects the whole file and applies no partial merge. Items whose
// ids are already present are skipped; accepted items are appended subject to
// the normal per-volume caps. Returns the number of items added.
func (s *Store) Import(payload []byte, kind Kind) (int, error) {
	if bytes.HasPrefix(payload, xzMagic) {
		r, err := xz.NewReader(bytes.NewReader(payload))
		if err != nil {
			return 0, errors.NewImport(docType(kind), "", "corrupt compressed payload")
		}
		payload, err = io.ReadAll(r)
		if err != nil {
			return 0, errors.NewImport(docType(kind), "", "corrupt compressed payload")
		}
	}

	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return 0, errors.NewImport(docType(kind), "", "not a valid annotation document")
	}
	if doc.Type != docType(kind) {
		return 0, errors.NewImport(docType(kind), doc.Type, "")
	}
	if doc.Version > DocumentVersion {
		return 0, errors.NewImport(docType(kind), doc.Type, "document version is newer than this application supports")
	}

	switch kind {
	case KindNote:
		var incoming []Note
		if err := json.Unmarshal(doc.Data, &incoming); err != nil {
			return 0, errors.NewImport(docType(kind), doc.Type, "malformed note data")
		}
		return s.importNotes(incoming), nil
	case KindBookmark:
		var incoming []Bookmark
		if err := json.Unmarshal(doc.Data, &incoming); err != nil {
			return 0, errors.NewImport(docType(kind), doc.Type, "malformed bookmark data")
		}
		return s.importBookmarks(incoming), nil
	default:
		return 0, errors.NewImport("", string(kind), "unknown annotation kind")
	}
}

func (s *Store) importNotes(incoming []Note) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]bool, len(s.notes))
	for _, n := range s.notes {
		existing[n.ID] = true
	}

	added := 0
	volumes := make(map[int]bool)
	for _, n := range incoming {
		if n.ID == "" || existing[n.ID] {
			continue
		}
		existing[n.ID] = true
		s.notes = append(s.notes, n)
		volumes[n.VolumeIndex] = true
		added++
	}
	if added > 0 {
		for v := range volumes {
			s.evictNotes(v)
		}
		s.persist(keyNotes, s.notes)
	}
	return added
}

func (s *Store) importBookmarks(incoming []Bookmark) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]bool, len(s.bookmarks))
	for _, b := range s.bookmarks {
		existing[b.ID] = true
	}

	added := 0
	volumes := make(map[int]bool)
	for _, b := range incoming {
		if b.ID == "" || existing[b.ID] {
			continue
		}
		existing[b.ID] = true
		s.bookmarks = append(s.bookmarks, b)
		volumes[b.VolumeIndex] = true
		added++
	}
	if added > 0 {
		for v := range volumes {
			s.evictBookmarks(v)
		}
		s.persist(keyBookmarks, s.bookmarks)
	}
	return added
}
