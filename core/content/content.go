// Package content loads volumes and exposes the immutable flattened-text
// view that all addressing, search and annotation code works against.
//
// A volume's content is computed once per load: the full concatenation of its
// chapters' visible text in reading order, plus an ordered chapter boundary
// table mapping character offsets back to chapters. Content is immutable for
// the session; a blake3 fingerprint of the flattened text lets callers detect
// that a volume was regenerated between sessions and that stored addresses
// may therefore have drifted.
package content

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Chapter identifies one chapter of a volume.
type Chapter struct {
	AnchorID string `json:"anchor_id"`
	Title    string `json:"title"`
	Ordinal  int    `json:"ordinal"`
}

// ChapterSpan is a chapter plus the half-open range of the volume's flattened
// text it covers.
type ChapterSpan struct {
	Chapter
	Start int `json:"start"`
	End   int `json:"end"`
}

// Content is the immutable flattened view of a loaded volume.
type Content struct {
	VolumeIndex int           `json:"volume_index"`
	Title       string        `json:"title"`
	Text        string        `json:"-"`
	Chapters    []ChapterSpan `json:"chapters"`
	Fingerprint string        `json:"fingerprint"`
}

// chapterSeparator joins chapters in the flattened text. It is whitespace so
// it never forms tokens of its own.
const chapterSeparator = "\n\n"

// build assembles a Content from per-chapter flattened text.
func build(volumeIndex int, title string, chapters []Chapter, texts []string) *Content {
	c := &Content{
		VolumeIndex: volumeIndex,
		Title:       title,
	}
	pos := 0
	for i, ch := range chapters {
		if i > 0 {
			c.Text += chapterSeparator
			pos += len(chapterSeparator)
		}
		c.Chapters = append(c.Chapters, ChapterSpan{
			Chapter: ch,
			Start:   pos,
			End:     pos + len(texts[i]),
		})
		c.Text += texts[i]
		pos += len(texts[i])
	}
	sum := blake3.Sum256([]byte(c.Text))
	c.Fingerprint = hex.EncodeToString(sum[:])
	return c
}

// ChapterAt returns the chapter span containing the given flattened-text
// offset. Offsets falling in a separator resolve to the preceding chapter.
func (c *Content) ChapterAt(offset int) (ChapterSpan, bool) {
	if offset < 0 || len(c.Chapters) == 0 {
		return ChapterSpan{}, false
	}
	for i := len(c.Chapters) - 1; i >= 0; i-- {
		if offset >= c.Chapters[i].Start {
			if offset <= c.Chapters[i].End || i == len(c.Chapters)-1 {
				return c.Chapters[i], true
			}
			// Inside the separator after chapter i.
			return c.Chapters[i], true
		}
	}
	return ChapterSpan{}, false
}

// ChapterByAnchor returns the chapter span with the given anchor id.
func (c *Content) ChapterByAnchor(anchorID string) (ChapterSpan, bool) {
	for _, span := range c.Chapters {
		if span.AnchorID == anchorID {
			return span, true
		}
	}
	return ChapterSpan{}, false
}

// ChapterText returns the flattened text of the given chapter span.
func (c *Content) ChapterText(span ChapterSpan) string {
	return c.Text[span.Start:span.End]
}

// Segments slices the flattened text at chapter boundaries such that the
// concatenation of all segments equals Text exactly. Used to seed the render
// tree with one text node per chapter.
func (c *Content) Segments() []string {
	if len(c.Chapters) == 0 {
		return []string{c.Text}
	}
	var segs []string
	for i, span := range c.Chapters {
		end := len(c.Text)
		if i+1 < len(c.Chapters) {
			end = c.Chapters[i+1].Start
		}
		segs = append(segs, c.Text[span.Start:end])
	}
	return segs
}
