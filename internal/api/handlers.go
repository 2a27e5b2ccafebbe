package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/FocuswithJustin/Lectern/core/annotate"
	"github.com/FocuswithJustin/Lectern/core/content"
	"github.com/FocuswithJustin/Lectern/core/errors"
	"github.com/FocuswithJustin/Lectern/core/syncmerge"
)

// APIResponse is the uniform response envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError carries a machine-readable code and a human-readable message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta carries response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	resp := APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	resp := APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// respondFromError maps domain errors onto HTTP statuses.
func respondFromError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, errors.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, errors.ErrUnresolvable):
		respondError(w, http.StatusConflict, "unresolvable", err.Error())
	case errors.Is(err, errors.ErrSyncUnavailable):
		respondError(w, http.StatusServiceUnavailable, "sync_unavailable", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"volumes": s.library.VolumeCount(),
		"clients": s.hub.ClientCount(),
	})
}

// VolumeInfo describes one volume of the library.
type VolumeInfo struct {
	Index    int    `json:"index"`
	Title    string `json:"title"`
	Chapters int    `json:"chapters"`
}

func (s *Server) handleVolumes(w http.ResponseWriter, r *http.Request) {
	volumes := make([]VolumeInfo, 0, s.library.VolumeCount())
	for i := 0; i < s.library.VolumeCount(); i++ {
		info := VolumeInfo{Index: i, Title: s.library.VolumeTitle(i)}
		if chapters, err := s.library.Chapters(i); err == nil {
			info.Chapters = len(chapters)
		}
		volumes = append(volumes, info)
	}
	respond(w, http.StatusOK, volumes)
}

func (s *Server) handleOpenVolume(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "volume index must be an integer")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.OpenVolume(index); err != nil {
		respondFromError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]int{"volume": index})
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "volume index must be an integer")
		return
	}
	chapters, err := s.library.Chapters(index)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respond(w, http.StatusOK, chapters)
}

// chapterView is a chapter span plus its flattened text, as served to reader
// clients.
type chapterView struct {
	content.ChapterSpan
	Text string `json:"text"`
}

func (s *Server) handleChapterText(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "volume index must be an integer")
		return
	}
	c, err := s.library.Content(index)
	if err != nil {
		respondFromError(w, err)
		return
	}
	span, ok := c.ChapterByAnchor(r.PathValue("anchor"))
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "no such chapter")
		return
	}
	respond(w, http.StatusOK, chapterView{ChapterSpan: span, Text: c.ChapterText(span)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		respondError(w, http.StatusBadRequest, "invalid_input", "missing q parameter")
		return
	}

	s.mu.Lock()
	results, err := s.session.Search(q)
	s.mu.Unlock()
	if err != nil {
		respondFromError(w, err)
		return
	}
	respond(w, http.StatusOK, results)
}

// volumeFilter parses the optional ?volume= parameter; -1 means all.
func volumeFilter(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("volume")
	if raw == "" {
		return -1, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	volume, err := volumeFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "volume must be an integer")
		return
	}
	var notes []annotate.Note
	if volume < 0 {
		notes = s.store.Notes()
	} else {
		notes = s.store.NotesForVolume(volume)
	}
	respond(w, http.StatusOK, notes)
}

type createNoteRequest struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Body  string `json:"body"`
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "malformed request body")
		return
	}

	s.mu.Lock()
	note, err := s.session.CreateNote(req.Start, req.End, req.Body)
	s.mu.Unlock()
	if err != nil {
		respondFromError(w, err)
		return
	}
	respond(w, http.StatusCreated, note)
}

type updateNoteRequest struct {
	Body string `json:"body"`
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var req updateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "malformed request body")
		return
	}

	id := r.PathValue("id")
	s.mu.Lock()
	err := s.session.UpdateNoteBody(id, req.Body)
	s.mu.Unlock()
	if err != nil {
		respondFromError(w, err)
		return
	}
	note, _ := s.store.NoteByID(id)
	respond(w, http.StatusOK, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	err := s.session.DeleteNote(r.PathValue("id"))
	s.mu.Unlock()
	if err != nil {
		respondFromError(w, err)
		return
	}
	respond(w, http.StatusOK, nil)
}

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	volume, err := volumeFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "volume must be an integer")
		return
	}
	var bookmarks []annotate.Bookmark
	if volume < 0 {
		bookmarks = s.store.Bookmarks()
	} else {
		bookmarks = s.store.BookmarksForVolume(volume)
	}
	respond(w, http.StatusOK, bookmarks)
}

type createBookmarkRequest struct {
	Offset int `json:"offset"`
}

func (s *Server) handleCreateBookmark(w http.ResponseWriter, r *http.Request) {
	var req createBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "malformed request body")
		return
	}

	s.mu.Lock()
	bm, err := s.session.CaptureBookmark(req.Offset)
	s.mu.Unlock()
	if err != nil {
		respondFromError(w, err)
		return
	}
	respond(w, http.StatusCreated, bm)
}

func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	err := s.session.DeleteBookmark(r.PathValue("id"))
	s.mu.Unlock()
	if err != nil {
		respondFromError(w, err)
		return
	}
	respond(w, http.StatusOK, nil)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	volume, err := volumeFilter(r)
	if err != nil || volume < 0 {
		respondError(w, http.StatusBadRequest, "invalid_input", "volume parameter required")
		return
	}
	p, ok := s.store.Position(volume)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "no reading position for volume")
		return
	}
	respond(w, http.StatusOK, p)
}

type setPositionRequest struct {
	Offset int `json:"offset"`
}

func (s *Server) handleSetPosition(w http.ResponseWriter, r *http.Request) {
	var req setPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "malformed request body")
		return
	}

	s.mu.Lock()
	err := s.session.SetReadingPosition(req.Offset)
	s.mu.Unlock()
	if err != nil {
		respondFromError(w, err)
		return
	}
	respond(w, http.StatusAccepted, nil)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	res, err := s.session.Sync(r.Context())
	volume := s.session.CurrentVolume()
	s.mu.Unlock()
	if err != nil {
		respondFromError(w, err)
		return
	}

	if res.Mode != syncmerge.RefreshNone {
		s.hub.BroadcastRefresh(res.Mode.String(), volume)
	}
	respond(w, http.StatusOK, res)
}

func importExportKind(r *http.Request) (annotate.Kind, bool) {
	switch r.URL.Query().Get("kind") {
	case "notes", "note", "":
		return annotate.KindNote, true
	case "bookmarks", "bookmark":
		return annotate.KindBookmark, true
	default:
		return "", false
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	kind, ok := importExportKind(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_input", "kind must be notes or bookmarks")
		return
	}

	var payload []byte
	var err error
	if r.URL.Query().Get("compress") == "true" {
		payload, err = s.store.ExportCompressed(kind)
		w.Header().Set("Content-Type", "application/x-xz")
	} else {
		payload, err = s.store.Export(kind)
		w.Header().Set("Content-Type", "application/json")
	}
	if err != nil {
		respondFromError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	kind, ok := importExportKind(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_input", "kind must be notes or bookmarks")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 32<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "could not read payload")
		return
	}

	added, err := s.store.Import(payload, kind)
	if err != nil {
		var ie *errors.ImportError
		if errors.As(err, &ie) {
			respondError(w, http.StatusUnprocessableEntity, "import_rejected", err.Error())
			return
		}
		respondFromError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]int{"added": added})
}
