package search

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/Lectern/core/content"
)

// writeLibrary lays out a two-volume fixture library with text chosen to
// exercise ranking, filters and literal fallback.
func writeLibrary(t *testing.T) *content.Library {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"01-first/volume.json": `{"title": "Foundations"}`,
		"01-first/ch01.txt":    "The Yogas of the early schools differ. Yoga itself is stillness.\n",
		"01-first/ch02.txt":    "Later chapters mention Yoga again, and the C++ compiler once, oddly.\n",
		"02-second/ch01.txt":   "A second volume that also speaks of Yoga and of breath.\n",
	}
	for rel, text := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}

	lib, err := content.LoadLibrary(dir)
	if err != nil {
		t.Fatalf("LoadLibrary error: %v", err)
	}
	return lib
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		in      string
		volume  int
		chapter string
		pattern string
	}{
		{"liberation", -1, "", "liberation"},
		{"vol:2 breath", 2, "", "breath"},
		{`chapter:ch01 "the practice" begins`, -1, "ch01", "the practice begins"},
		{"  ", -1, "", ""},
		{"vol", -1, "", "vol"},
		{"two words", -1, "", "two words"},
	}
	for _, tt := range tests {
		q := ParseQuery(tt.in)
		if q.Volume != tt.volume {
			t.Errorf("ParseQuery(%q).Volume = %d; want %d", tt.in, q.Volume, tt.volume)
		}
		if q.Chapter != tt.chapter {
			t.Errorf("ParseQuery(%q).Chapter = %q; want %q", tt.in, q.Chapter, tt.chapter)
		}
		if q.Pattern() != tt.pattern {
			t.Errorf("ParseQuery(%q).Pattern() = %q; want %q", tt.in, q.Pattern(), tt.pattern)
		}
	}
}

func TestParseQuery_UnparsableFallsBackToLiteral(t *testing.T) {
	q := ParseQuery(`"unclosed phrase`)
	if q.Pattern() != `"unclosed phrase` {
		t.Errorf("Pattern = %q; want the raw input as one term", q.Pattern())
	}
}

func TestCompilePattern(t *testing.T) {
	re, err := CompilePattern("lib.*tion")
	if err != nil {
		t.Fatalf("CompilePattern error: %v", err)
	}
	if !re.MatchString("LIBERATION") {
		t.Error("pattern should match case-insensitively")
	}

	if _, err := CompilePattern(""); err == nil {
		t.Error("empty pattern should error")
	}
}

func TestCompilePattern_LiteralFallback(t *testing.T) {
	// "C++" is not a valid regular expression; the fallback searches for it
	// literally and deterministically.
	re, err := CompilePattern("C++")
	if err != nil {
		t.Fatalf("CompilePattern error: %v", err)
	}
	if got := re.FindString("the c++ compiler"); got != "c++" {
		t.Errorf("FindString = %q; want c++", got)
	}
	if re.MatchString("CCCC") {
		t.Error("fallback must be literal, not a repaired regex")
	}
}

func TestSearch_RanksWholeWordFirst(t *testing.T) {
	e := NewEngine(writeLibrary(t))

	results, err := e.Search(ParseQuery("Yoga"))
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("results = %d; want 4 (one inside Yogas, three whole-word)", len(results))
	}

	// The occurrence inside "Yogas" is not a whole word and ranks last.
	last := results[len(results)-1]
	if last.Exact {
		t.Error("last result should be the non-exact one")
	}
	if !strings.Contains(last.Snippet, "Yogas") {
		t.Errorf("last snippet = %q; want the Yogas occurrence", last.Snippet)
	}
	for i, r := range results[:len(results)-1] {
		if !r.Exact {
			t.Errorf("results[%d] should be a whole-word match", i)
		}
	}

	// Within the exact tier: volume order, then position.
	if results[0].VolumeIndex != 0 || results[2].VolumeIndex != 1 {
		t.Errorf("tier ordering off: volumes %d, %d, %d",
			results[0].VolumeIndex, results[1].VolumeIndex, results[2].VolumeIndex)
	}
}

func TestSearch_VolumeFilter(t *testing.T) {
	e := NewEngine(writeLibrary(t))

	results, err := e.Search(ParseQuery("vol:1 Yoga"))
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	for _, r := range results {
		if r.VolumeIndex != 1 {
			t.Errorf("result from volume %d despite vol:1 filter", r.VolumeIndex)
		}
	}
	if len(results) != 1 {
		t.Errorf("results = %d; want 1", len(results))
	}
}

func TestSearch_ChapterFilter(t *testing.T) {
	e := NewEngine(writeLibrary(t))

	results, err := e.Search(ParseQuery("chapter:ch02 Yoga"))
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 || results[0].ChapterAnchor != "ch02" {
		t.Fatalf("results = %+v; want the single ch02 occurrence", results)
	}
}

func TestSearch_SnippetAndPosition(t *testing.T) {
	e := NewEngine(writeLibrary(t))

	results, err := e.Search(ParseQuery("breath"))
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d; want 1", len(results))
	}
	r := results[0]
	if !strings.Contains(r.Snippet, "breath") {
		t.Errorf("snippet %q should contain the match", r.Snippet)
	}
	if r.PositionPercent <= 0 || r.PositionPercent > 100 {
		t.Errorf("position percent = %v", r.PositionPercent)
	}
	if r.VolumeTitle != "02-second" {
		t.Errorf("volume title = %q", r.VolumeTitle)
	}
}

func TestSearch_PositionPercentIsChapterRelative(t *testing.T) {
	e := NewEngine(writeLibrary(t))

	results, err := e.Search(ParseQuery("chapter:ch02 Yoga"))
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d; want 1", len(results))
	}
	r := results[0]

	chapterText := "Later chapters mention Yoga again, and the C++ compiler once, oddly."
	want := float64(strings.Index(chapterText, "Yoga")) / float64(len(chapterText)) * 100
	if math.Abs(r.PositionPercent-want) > 0.001 {
		t.Errorf("position percent = %v; want %v (offset within the chapter)", r.PositionPercent, want)
	}
	// The match sits early in its chapter even though the chapter starts
	// halfway through the volume's flattened text.
	if r.PositionPercent >= 50 {
		t.Errorf("position percent = %v; must not be volume-relative", r.PositionPercent)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	e := NewEngine(writeLibrary(t))
	if _, err := e.Search(ParseQuery("   ")); err == nil {
		t.Error("empty query should error")
	}
}

func TestSearch_CapsResults(t *testing.T) {
	dir := t.TempDir()
	vdir := filepath.Join(dir, "01-only")
	if err := os.MkdirAll(vdir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	text := strings.Repeat("word filler ", 300)
	if err := os.WriteFile(filepath.Join(vdir, "ch01.txt"), []byte(text), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	lib, err := content.LoadLibrary(dir)
	if err != nil {
		t.Fatalf("LoadLibrary error: %v", err)
	}

	results, err := NewEngine(lib).Search(ParseQuery("word"))
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != DefaultLimit {
		t.Errorf("results = %d; want the cap of %d", len(results), DefaultLimit)
	}
}
