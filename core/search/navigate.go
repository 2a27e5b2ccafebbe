package search

import (
	"fmt"
	"regexp"

	"github.com/FocuswithJustin/Lectern/core/content"
	"github.com/FocuswithJustin/Lectern/core/highlight"
	"github.com/FocuswithJustin/Lectern/core/rendertree"
)

// NavigateTo highlights every occurrence of the compiled pattern within the
// result's chapter and returns the marker id of the occurrence closest to the
// result's stored offset. The stored offset may have drifted since the search
// ran, so the nearest current occurrence is focused rather than a blind
// offset jump. Matches in other chapters are left alone. Returns false when
// the pattern no longer occurs in the chapter.
func NavigateTo(r *highlight.Renderer, tree *rendertree.Tree, c *content.Content, re *regexp.Regexp, result Result) (string, bool) {
	text := tree.Text()
	lo, hi := 0, len(text)
	if c != nil {
		if span, ok := c.ChapterByAnchor(result.ChapterAnchor); ok && span.End <= len(text) {
			lo, hi = span.Start, span.End
		}
	}

	locs := re.FindAllStringIndex(text[lo:hi], -1)
	if len(locs) == 0 {
		return "", false
	}

	best := 0
	for i, loc := range locs {
		if distance(lo+loc[0], result.CharOffset) < distance(lo+locs[best][0], result.CharOffset) {
			best = i
		}
	}

	focus := ""
	for i, loc := range locs {
		id := fmt.Sprintf("search-%d", i)
		if r.MarkSearch(id, lo+loc[0], loc[1]-loc[0]) && i == best {
			focus = id
		}
	}
	if focus == "" {
		return "", false
	}
	return focus, true
}

// ClearHighlights removes all transient search markers from the tree.
func ClearHighlights(r *highlight.Renderer) int {
	return r.Clear(highlight.KindSearch)
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
