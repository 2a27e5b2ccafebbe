// Package anchor implements durable word addressing over flattened volume
// text.
//
// A word address is a (wordIndex, anchorToken) pair: wordIndex counts the
// whitespace-delimited tokens that precede the target in a volume's flattened
// text, and anchorToken is the literal token expected at that index. The
// encoding is deliberately redundant: the index survives font, zoom and theme
// changes (none of which alter flattened text), while the literal token is the
// safety net against small drifts such as whitespace normalization differences
// between capture time and restore time.
//
// Addresses must be computed before any highlight marker is inserted at the
// target location. A marker inserted first would contribute its own text to
// the token stream and silently shift every subsequent index.
package anchor

import (
	"strings"
	"unicode"

	"github.com/FocuswithJustin/Lectern/core/errors"
)

// Address identifies a position in a volume's flattened text.
type Address struct {
	// WordIndex counts whitespace-delimited tokens preceding the target.
	WordIndex uint `json:"word_index"`

	// AnchorToken is the literal token text expected at WordIndex.
	AnchorToken string `json:"anchor_token"`
}

// Range is a half-open character range [Start, End) in flattened text.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Token is a maximal run of non-whitespace characters in flattened text.
type Token struct {
	Start int    // Byte offset of the first character
	End   int    // Byte offset one past the last character
	Text  string // The token text
}

// Tokenize splits text into whitespace-delimited tokens with their byte
// offsets. Tokens are maximal runs of non-whitespace; any Unicode whitespace
// separates them.
func Tokenize(text string) []Token {
	var tokens []Token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, Token{Start: start, End: i, Text: text[start:i]})
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, Token{Start: start, End: len(text), Text: text[start:]})
	}
	return tokens
}

// TokenCount returns the number of whitespace-delimited tokens in text
// without materializing them.
func TokenCount(text string) uint {
	var count uint
	inToken := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inToken = false
		} else if !inToken {
			inToken = true
			count++
		}
	}
	return count
}

// Source supplies per-volume flattened text. Content is immutable for the
// session once loaded.
type Source interface {
	VolumeCount() int
	FlattenedText(volumeIndex int) (string, error)
}

// Resolver converts text ranges into durable addresses and back, against a
// content source.
type Resolver struct {
	source Source
}

// NewResolver creates a resolver over the given content source.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// ComputeAddress converts a range start offset in the given volume's
// flattened text into a durable word address. Tokens that lie entirely before
// rangeStart are counted; the token at that count (the one containing or
// immediately following rangeStart) becomes the anchor.
func (r *Resolver) ComputeAddress(volumeIndex int, rangeStart int) (Address, error) {
	text, err := r.source.FlattenedText(volumeIndex)
	if err != nil {
		return Address{}, errors.Wrapf(err, "compute address in volume %d", volumeIndex)
	}
	return Compute(text, rangeStart)
}

// ResolveAddress relocates a stored address in the given volume's flattened
// text. It returns the located range of the anchor token, or an error
// satisfying errors.ErrUnresolvable if the index is out of range or the
// anchor text cannot be found forward of the approximate offset.
func (r *Resolver) ResolveAddress(volumeIndex int, addr Address) (Range, error) {
	text, err := r.source.FlattenedText(volumeIndex)
	if err != nil {
		return Range{}, errors.Wrapf(err, "resolve address in volume %d", volumeIndex)
	}
	rng, rerr := Resolve(text, addr)
	if rerr != nil {
		// Attach the volume index for logging.
		return Range{}, errors.NewResolution(volumeIndex, addr.WordIndex, addr.AnchorToken, rerr.Error())
	}
	return rng, nil
}

// Compute counts the tokens of text that lie entirely before rangeStart and
// returns the address whose anchor is the next token. rangeStart may fall
// inside a token, in which case that token is the anchor.
func Compute(text string, rangeStart int) (Address, error) {
	if rangeStart < 0 || rangeStart > len(text) {
		return Address{}, errors.NewResolution(0, 0, "", "range start out of bounds")
	}

	var index uint
	var anchor Token
	found := false
	forEachToken(text, func(tok Token) bool {
		if tok.End <= rangeStart {
			index++
			return true
		}
		anchor = tok
		found = true
		return false
	})
	if !found {
		// rangeStart lies in trailing whitespace past the last token; anchor
		// to the last token so the address stays resolvable.
		if index == 0 {
			return Address{}, errors.NewResolution(0, 0, "", "no tokens in text")
		}
		index--
		anchor, _ = tokenAt(text, index)
	}
	return Address{WordIndex: index, AnchorToken: anchor.Text}, nil
}

// Resolve relocates addr within text. The token at addr.WordIndex provides an
// approximate character offset; the literal anchor token is then searched
// forward from that offset. This two-step scheme tolerates small upstream
// drifts (extra whitespace, normalization differences) without ever matching
// text that precedes the approximate position.
func Resolve(text string, addr Address) (Range, error) {
	if addr.AnchorToken == "" {
		return Range{}, errors.NewResolution(0, addr.WordIndex, "", "empty anchor token")
	}

	tok, ok := tokenAt(text, addr.WordIndex)
	if !ok {
		return Range{}, errors.NewResolution(0, addr.WordIndex, addr.AnchorToken, "word index exceeds token count")
	}

	at := indexFrom(text, addr.AnchorToken, tok.Start)
	if at < 0 {
		return Range{}, errors.NewResolution(0, addr.WordIndex, addr.AnchorToken, "anchor token not found")
	}
	return Range{Start: at, End: at + len(addr.AnchorToken)}, nil
}

// forEachToken scans text token by token without materializing a slice. The
// callback returns false to stop early.
func forEachToken(text string, fn func(Token) bool) {
	tokStart := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if tokStart >= 0 {
				if !fn(Token{Start: tokStart, End: i, Text: text[tokStart:i]}) {
					return
				}
				tokStart = -1
			}
		} else if tokStart < 0 {
			tokStart = i
		}
	}
	if tokStart >= 0 {
		fn(Token{Start: tokStart, End: len(text), Text: text[tokStart:]})
	}
}

// tokenAt returns the index-th token of text.
func tokenAt(text string, index uint) (Token, bool) {
	var count uint
	var found Token
	ok := false
	forEachToken(text, func(tok Token) bool {
		if count == index {
			found = tok
			ok = true
			return false
		}
		count++
		return true
	})
	return found, ok
}

// indexFrom finds needle in text at or after offset, returning the absolute
// byte offset or -1.
func indexFrom(text, needle string, offset int) int {
	if offset < 0 || offset > len(text) {
		return -1
	}
	rel := strings.Index(text[offset:], needle)
	if rel < 0 {
		return -1
	}
	return offset + rel
}
