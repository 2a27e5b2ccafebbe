// Package api serves the reader's HTTP surface: volumes, search,
// annotations, reading positions, portable import/export and sync, plus a
// WebSocket channel that tells open reader views when to refresh their
// highlights.
package api

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/FocuswithJustin/Lectern/core/annotate"
	"github.com/FocuswithJustin/Lectern/core/content"
	"github.com/FocuswithJustin/Lectern/internal/logging"
	"github.com/FocuswithJustin/Lectern/internal/session"
)

// Config carries the server's listen settings.
type Config struct {
	// Host to bind; defaults to loopback.
	Host string

	// Port to listen on.
	Port int
}

// Server owns one reader session and its HTTP surface. Session operations are
// serialized: the session models a single reader, not a multi-tenant
// backend.
type Server struct {
	cfg     Config
	library *content.Library
	store   *annotate.Store
	hub     *Hub

	mu      sync.Mutex
	session *session.Session
}

// NewServer wires a server around an existing session.
func NewServer(cfg Config, library *content.Library, store *annotate.Store, sess *session.Session) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	return &Server{
		cfg:     cfg,
		library: library,
		store:   store,
		session: sess,
		hub:     NewHub(),
	}
}

// Handler builds the full middleware-wrapped handler. Exposed separately from
// Start so tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /volumes", s.handleVolumes)
	mux.HandleFunc("POST /volumes/{index}/open", s.handleOpenVolume)
	mux.HandleFunc("GET /volumes/{index}/chapters", s.handleChapters)
	mux.HandleFunc("GET /volumes/{index}/chapters/{anchor}", s.handleChapterText)
	mux.HandleFunc("GET /search", s.handleSearch)

	mux.HandleFunc("GET /notes", s.handleListNotes)
	mux.HandleFunc("POST /notes", s.handleCreateNote)
	mux.HandleFunc("PATCH /notes/{id}", s.handleUpdateNote)
	mux.HandleFunc("DELETE /notes/{id}", s.handleDeleteNote)

	mux.HandleFunc("GET /bookmarks", s.handleListBookmarks)
	mux.HandleFunc("POST /bookmarks", s.handleCreateBookmark)
	mux.HandleFunc("DELETE /bookmarks/{id}", s.handleDeleteBookmark)

	mux.HandleFunc("GET /position", s.handleGetPosition)
	mux.HandleFunc("PUT /position", s.handleSetPosition)

	mux.HandleFunc("POST /sync", s.handleSync)
	mux.HandleFunc("GET /export", s.handleExport)
	mux.HandleFunc("POST /import", s.handleImport)

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return logging.CombinedMiddleware(mux)
}

// Start runs the hub and blocks serving HTTP.
func (s *Server) Start() error {
	go s.hub.Run()
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	logging.ServerStartup("reader_api", "http", s.cfg.Port,
		"host", s.cfg.Host,
		"volumes", s.library.VolumeCount())
	return http.ListenAndServe(addr, s.Handler())
}
