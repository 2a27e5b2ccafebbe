// Package search implements case-insensitive pattern search over the
// library's flattened volume text.
//
// Queries are regular expressions by default; a query that is not a valid
// pattern deterministically falls back to an escaped-literal search, so "C++"
// finds C++ instead of erroring. Results are ranked in two tiers: occurrences
// that match the query as a whole word come first, then everything else, each
// tier ordered by volume and position. Result lists are capped; search is a
// finding aid, not an index dump.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/FocuswithJustin/Lectern/core/content"
	"github.com/FocuswithJustin/Lectern/core/errors"
	"github.com/FocuswithJustin/Lectern/internal/logging"
)

const (
	// DefaultLimit caps the result list.
	DefaultLimit = 100

	// snippetRadius is the number of bytes of context kept on each side of a
	// match in its snippet, trimmed to rune boundaries.
	snippetRadius = 80
)

// Result is one search occurrence.
type Result struct {
	VolumeIndex     int     `json:"volume_index"`
	VolumeTitle     string  `json:"volume_title"`
	ChapterAnchor   string  `json:"chapter_anchor"`
	ChapterTitle    string  `json:"chapter_title"`
	CharOffset      int     `json:"char_offset"`
	Length          int     `json:"length"`
	Snippet         string  `json:"snippet"`
	PositionPercent float64 `json:"position_percent"`

	// Exact marks occurrences where the query matches a whole word.
	Exact bool `json:"exact"`
}

// Engine searches the library's flattened text.
type Engine struct {
	library *content.Library
	limit   int
}

// NewEngine creates a search engine over the library with the default result
// cap.
func NewEngine(library *content.Library) *Engine {
	return &Engine{library: library, limit: DefaultLimit}
}

// CompilePattern compiles a query pattern case-insensitively. An invalid
// regular expression falls back to an escaped-literal pattern rather than
// failing, and the fallback is logged once per compile.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "empty search pattern")
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		perr := errors.NewPattern(pattern, err)
		logging.Debug("search pattern fell back to literal", "error", perr.Error())
		return regexp.MustCompile("(?i)" + regexp.QuoteMeta(pattern)), nil
	}
	return re, nil
}

// Search runs a parsed query against every volume it scopes to. Volumes whose
// content fails to load are logged and skipped, never fatal. Results come
// back ranked and capped.
func (e *Engine) Search(q Query) ([]Result, error) {
	if q.Empty() {
		return nil, errors.Wrap(errors.ErrInvalidInput, "empty query")
	}
	pattern := q.Pattern()
	re, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}

	var results []Result
	for v := 0; v < e.library.VolumeCount(); v++ {
		if q.Volume >= 0 && q.Volume != v {
			continue
		}
		c, err := e.library.Content(v)
		if err != nil {
			logging.StoreEvent("search_volume_skipped", "", err, "volume", v)
			continue
		}
		results = append(results, e.searchVolume(c, q, re, pattern)...)
	}

	rank(results)
	if len(results) > e.limit {
		results = results[:e.limit]
	}
	return results, nil
}

func (e *Engine) searchVolume(c *content.Content, q Query, re *regexp.Regexp, pattern string) []Result {
	var out []Result
	for _, span := range c.Chapters {
		if q.Chapter != "" && q.Chapter != span.AnchorID {
			continue
		}
		chapterText := c.ChapterText(span)
		for _, loc := range re.FindAllStringIndex(chapterText, -1) {
			start := span.Start + loc[0]
			end := span.Start + loc[1]
			out = append(out, Result{
				VolumeIndex:     c.VolumeIndex,
				VolumeTitle:     c.Title,
				ChapterAnchor:   span.AnchorID,
				ChapterTitle:    span.Title,
				CharOffset:      start,
				Length:          end - start,
				Snippet:         snippet(c.Text, start, end),
				PositionPercent: positionPercent(loc[0], len(chapterText)),
				Exact:           wholeWordMatch(c.Text, start, end, pattern),
			})
		}
	}
	return out
}

// rank orders results with whole-word matches first, then by volume and
// position within each tier. The sort is stable so equal keys keep scan
// order.
func rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Exact != b.Exact {
			return a.Exact
		}
		if a.VolumeIndex != b.VolumeIndex {
			return a.VolumeIndex < b.VolumeIndex
		}
		return a.CharOffset < b.CharOffset
	})
}

// wholeWordMatch reports whether the matched span equals the query pattern
// and is delimited by non-word characters, so "Yoga" in "Yoga" outranks
// "Yoga" inside "Yogas".
func wholeWordMatch(text string, start, end int, pattern string) bool {
	if !strings.EqualFold(text[start:end], pattern) {
		return false
	}
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// snippet extracts the match with surrounding context, trimmed to rune
// boundaries and marked with ellipses where truncated.
func snippet(text string, start, end int) string {
	from := start - snippetRadius
	if from < 0 {
		from = 0
	}
	to := end + snippetRadius
	if to > len(text) {
		to = len(text)
	}
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}

	s := text[from:to]
	if from > 0 {
		s = "…" + s
	}
	if to < len(text) {
		s += "…"
	}
	return s
}

// positionPercent maps a chapter-relative offset to a 0-100 progress value
// within that chapter.
func positionPercent(offset, chapterLen int) float64 {
	if chapterLen == 0 {
		return 0
	}
	return float64(offset) / float64(chapterLen) * 100
}
