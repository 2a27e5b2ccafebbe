// Command lectern is the reader's CLI: it serves the reading API and works
// with the library, annotations, search and sync from the terminal.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/Lectern/core/annotate"
	"github.com/FocuswithJustin/Lectern/core/content"
	"github.com/FocuswithJustin/Lectern/core/syncmerge"
	"github.com/FocuswithJustin/Lectern/internal/api"
	"github.com/FocuswithJustin/Lectern/internal/logging"
	"github.com/FocuswithJustin/Lectern/internal/session"
	"github.com/FocuswithJustin/Lectern/internal/storage"
)

const version = "0.1.0"

// CLI defines the command-line interface for lectern.
var CLI struct {
	// Global flags
	Library   string `help:"Library directory (one subdirectory per volume)" short:"l" default:"library" type:"path"`
	Data      string `help:"Data directory for the annotation database" short:"d" default:"data" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level" enum:"debug,info,warn,error" default:"info"`
	LogFormat string `name:"log-format" help:"Log format" enum:"json,text" default:"text"`
	Remote    string `help:"Sync remote: a file path or an http(s) URL" env:"LECTERN_REMOTE"`
	Token     string `help:"Bearer token for an HTTP sync remote" env:"LECTERN_SYNC_TOKEN"`
	Device    string `help:"Device id used in sync snapshots (defaults to the hostname)"`

	Serve    ServeCmd      `cmd:"" help:"Start the reader API server"`
	Volumes  VolumesCmd    `cmd:"" help:"List the library's volumes"`
	Search   SearchCmd     `cmd:"" help:"Search the library"`
	Note     NoteGroup     `cmd:"" help:"Note operations"`
	Bookmark BookmarkGroup `cmd:"" help:"Bookmark operations"`
	Position PositionCmd   `cmd:"" help:"Show stored reading positions"`
	Sync     SyncCmd       `cmd:"" help:"Run one sync round against the remote"`
	Export   ExportCmd     `cmd:"" help:"Export annotations to a portable file"`
	Import   ImportCmd     `cmd:"" help:"Import annotations from a portable file"`
	Version  VersionCmd    `cmd:"" help:"Print version information"`
}

// NoteGroup contains note operations.
type NoteGroup struct {
	List NoteListCmd `cmd:"" help:"List notes"`
	Add  NoteAddCmd  `cmd:"" help:"Attach a note to the first occurrence of a text"`
	Rm   NoteRmCmd   `cmd:"" help:"Delete a note"`
}

// BookmarkGroup contains bookmark operations.
type BookmarkGroup struct {
	List BookmarkListCmd `cmd:"" help:"List bookmarks"`
	Add  BookmarkAddCmd  `cmd:"" help:"Bookmark the first occurrence of a word"`
	Rm   BookmarkRmCmd   `cmd:"" help:"Delete a bookmark"`
}

// appEnv holds the opened library, store and session shared by all commands.
type appEnv struct {
	library *content.Library
	db      *storage.Store
	store   *annotate.Store
	session *session.Session
}

func (e *appEnv) Close() {
	if e.session != nil {
		e.session.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
}

func buildEnv() (*appEnv, error) {
	library, err := content.LoadLibrary(CLI.Library)
	if err != nil {
		return nil, fmt.Errorf("opening library: %w", err)
	}

	if err := os.MkdirAll(CLI.Data, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := storage.Open(filepath.Join(CLI.Data, "annotations.db"))
	if err != nil {
		return nil, fmt.Errorf("opening annotation database: %w", err)
	}

	store := annotate.NewStore(db, annotate.DefaultConfig())
	sess := session.New(library, store, session.Config{
		Remote:   buildRemote(),
		DeviceID: deviceID(),
	})
	return &appEnv{library: library, db: db, store: store, session: sess}, nil
}

func buildRemote() syncmerge.Remote {
	switch {
	case CLI.Remote == "":
		return nil
	case strings.HasPrefix(CLI.Remote, "http://"), strings.HasPrefix(CLI.Remote, "https://"):
		return syncmerge.NewHTTPRemote(CLI.Remote, CLI.Token, nil)
	default:
		return syncmerge.NewFSRemote(CLI.Remote)
	}
}

func deviceID() string {
	if CLI.Device != "" {
		return CLI.Device
	}
	host, err := os.Hostname()
	if err != nil {
		return "lectern"
	}
	return host
}

// ServeCmd starts the reader API server.
type ServeCmd struct {
	Host string `help:"Address to bind" default:"127.0.0.1"`
	Port int    `help:"Port to listen on" short:"p" default:"8321"`
}

func (c *ServeCmd) Run(env *appEnv) error {
	srv := api.NewServer(api.Config{Host: c.Host, Port: c.Port}, env.library, env.store, env.session)
	err := srv.Start()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// VolumesCmd lists the library's volumes.
type VolumesCmd struct{}

func (c *VolumesCmd) Run(env *appEnv) error {
	for i := 0; i < env.library.VolumeCount(); i++ {
		chapters, err := env.library.Chapters(i)
		if err != nil {
			return err
		}
		fmt.Printf("%3d  %s (%d chapters)\n", i, env.library.VolumeTitle(i), len(chapters))
	}
	return nil
}

// SearchCmd searches the library.
type SearchCmd struct {
	Query string `arg:"" help:"Query: terms, quoted phrases, vol:N and chapter:ID filters"`
}

func (c *SearchCmd) Run(env *appEnv) error {
	results, err := env.session.Search(c.Query)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("[%d] %s — %s (%.0f%%)\n    %s\n",
			r.VolumeIndex, r.VolumeTitle, r.ChapterTitle, r.PositionPercent, r.Snippet)
	}
	fmt.Printf("%d result(s)\n", len(results))
	return nil
}

// NoteListCmd lists notes.
type NoteListCmd struct {
	Volume int `help:"Restrict to one volume" default:"-1"`
}

func (c *NoteListCmd) Run(env *appEnv) error {
	notes := env.store.Notes()
	if c.Volume >= 0 {
		notes = env.store.NotesForVolume(c.Volume)
	}
	for _, n := range notes {
		fmt.Printf("%s  vol %d  %q\n    %s\n", n.ID, n.VolumeIndex, n.SelectedText, n.Body)
	}
	fmt.Printf("%d note(s)\n", len(notes))
	return nil
}

// NoteAddCmd attaches a note to the first occurrence of a text.
type NoteAddCmd struct {
	Volume int    `help:"Volume index" required:""`
	Find   string `help:"Text to attach the note to" required:""`
	Body   string `arg:"" help:"Note body"`
}

func (c *NoteAddCmd) Run(env *appEnv) error {
	if err := env.session.OpenVolume(c.Volume); err != nil {
		return err
	}
	text := env.session.Tree().Text()
	at := strings.Index(text, c.Find)
	if at < 0 {
		return fmt.Errorf("text %q not found in volume %d", c.Find, c.Volume)
	}
	note, err := env.session.CreateNote(at, at+len(c.Find), c.Body)
	if err != nil {
		return err
	}
	fmt.Printf("note %s attached to %q\n", note.ID, note.SelectedText)
	return nil
}

// NoteRmCmd deletes a note.
type NoteRmCmd struct {
	ID string `arg:"" help:"Note id"`
}

func (c *NoteRmCmd) Run(env *appEnv) error {
	if err := env.session.DeleteNote(c.ID); err != nil {
		return err
	}
	fmt.Printf("note %s deleted\n", c.ID)
	return nil
}

// BookmarkListCmd lists bookmarks.
type BookmarkListCmd struct {
	Volume int `help:"Restrict to one volume" default:"-1"`
}

func (c *BookmarkListCmd) Run(env *appEnv) error {
	bookmarks := env.store.Bookmarks()
	if c.Volume >= 0 {
		bookmarks = env.store.BookmarksForVolume(c.Volume)
	}
	for _, b := range bookmarks {
		fmt.Printf("%s  vol %d  %s (%s)\n", b.ID, b.VolumeIndex, b.Word, b.ChapterTitle)
	}
	fmt.Printf("%d bookmark(s)\n", len(bookmarks))
	return nil
}

// BookmarkAddCmd bookmarks the first occurrence of a word.
type BookmarkAddCmd struct {
	Volume int    `help:"Volume index" required:""`
	Find   string `arg:"" help:"Word to bookmark"`
}

func (c *BookmarkAddCmd) Run(env *appEnv) error {
	if err := env.session.OpenVolume(c.Volume); err != nil {
		return err
	}
	text := env.session.Tree().Text()
	at := strings.Index(text, c.Find)
	if at < 0 {
		return fmt.Errorf("text %q not found in volume %d", c.Find, c.Volume)
	}
	bm, err := env.session.CaptureBookmark(at)
	if err != nil {
		return err
	}
	fmt.Printf("bookmark %s at %q\n", bm.ID, bm.Word)
	return nil
}

// BookmarkRmCmd deletes a bookmark.
type BookmarkRmCmd struct {
	ID string `arg:"" help:"Bookmark id"`
}

func (c *BookmarkRmCmd) Run(env *appEnv) error {
	if err := env.session.DeleteBookmark(c.ID); err != nil {
		return err
	}
	fmt.Printf("bookmark %s deleted\n", c.ID)
	return nil
}

// PositionCmd shows stored reading positions.
type PositionCmd struct{}

func (c *PositionCmd) Run(env *appEnv) error {
	shown := 0
	for i := 0; i < env.library.VolumeCount(); i++ {
		p, ok := env.store.Position(i)
		if !ok {
			continue
		}
		fmt.Printf("vol %d  word %d (%q)  %s\n",
			i, p.Address.WordIndex, p.Address.AnchorToken, p.UpdatedAt.Format("2006-01-02 15:04"))
		shown++
	}
	if shown == 0 {
		fmt.Println("no reading positions stored")
	}
	return nil
}

// SyncCmd runs one sync round against the remote.
type SyncCmd struct{}

func (c *SyncCmd) Run(env *appEnv) error {
	res, err := env.session.Sync(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("sync complete: %s refresh, +%d/-%d notes, +%d/-%d bookmarks\n",
		res.Mode, res.NotesAdded, res.NotesRemoved, res.BookmarksAdded, res.BookmarksRemoved)
	return nil
}

// ExportCmd exports annotations to a portable file.
type ExportCmd struct {
	Kind     string `help:"What to export" enum:"notes,bookmarks" default:"notes"`
	Out      string `arg:"" help:"Output path" type:"path"`
	Compress bool   `help:"Write an xz-compressed file"`
}

func (c *ExportCmd) Run(env *appEnv) error {
	kind := annotate.KindNote
	if c.Kind == "bookmarks" {
		kind = annotate.KindBookmark
	}

	var payload []byte
	var err error
	if c.Compress {
		payload, err = env.store.ExportCompressed(kind)
	} else {
		payload, err = env.store.Export(kind)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Out, payload, 0o644); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	fmt.Printf("exported %s to %s\n", c.Kind, c.Out)
	return nil
}

// ImportCmd imports annotations from a portable file.
type ImportCmd struct {
	Kind string `help:"What the file contains" enum:"notes,bookmarks" default:"notes"`
	Path string `arg:"" help:"File to import" type:"existingfile"`
}

func (c *ImportCmd) Run(env *appEnv) error {
	kind := annotate.KindNote
	if c.Kind == "bookmarks" {
		kind = annotate.KindBookmark
	}

	payload, err := os.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("reading import: %w", err)
	}
	added, err := env.store.Import(payload, kind)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d %s\n", added, c.Kind)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("lectern %s\n", version)
	return nil
}

func logLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("lectern"),
		kong.Description("Lectern - a multi-volume reader with durable annotations"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	format := logging.FormatText
	if CLI.LogFormat == "json" {
		format = logging.FormatJSON
	}
	logging.InitLogger(logLevel(CLI.LogLevel), format)

	var env *appEnv
	if ctx.Command() != "version" {
		var err error
		env, err = buildEnv()
		ctx.FatalIfErrorf(err)
		defer env.Close()
	}

	err := ctx.Run(env)
	ctx.FatalIfErrorf(err)
}
