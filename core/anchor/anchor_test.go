package anchor

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	lecterrors "github.com/FocuswithJustin/Lectern/core/errors"
)

const sample = "The path of liberation begins with a single step taken in stillness"

func TestTokenize(t *testing.T) {
	tokens := Tokenize("  alpha  beta\tgamma\n")

	want := []string{"alpha", "beta", "gamma"}
	if len(tokens) != len(want) {
		t.Fatalf("Tokenize returned %d tokens; want %d", len(tokens), len(want))
	}
	for i, w := range want {
		if tokens[i].Text != w {
			t.Errorf("token %d = %q; want %q", i, tokens[i].Text, w)
		}
	}

	// Offsets must slice back to the token text.
	text := "  alpha  beta\tgamma\n"
	for _, tok := range tokens {
		if text[tok.Start:tok.End] != tok.Text {
			t.Errorf("token offsets [%d:%d] yield %q; want %q", tok.Start, tok.End, text[tok.Start:tok.End], tok.Text)
		}
	}
}

func TestTokenize_Empty(t *testing.T) {
	if got := Tokenize(""); got != nil {
		t.Errorf("Tokenize(\"\") = %v; want nil", got)
	}
	if got := Tokenize("   \n\t "); got != nil {
		t.Errorf("Tokenize(whitespace) = %v; want nil", got)
	}
}

func TestTokenCount(t *testing.T) {
	tests := []struct {
		text string
		want uint
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"one two three", 3},
		{"  padded   out  ", 2},
		{sample, 12},
	}
	for _, tt := range tests {
		if got := TokenCount(tt.text); got != tt.want {
			t.Errorf("TokenCount(%q) = %d; want %d", tt.text, got, tt.want)
		}
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name       string
		rangeStart int
		wantIndex  uint
		wantAnchor string
	}{
		{"start of text", 0, 0, "The"},
		{"start of second token", 4, 1, "path"},
		{"mid-token anchors containing token", 5, 1, "path"},
		{"liberation", strings.Index(sample, "liberation"), 3, "liberation"},
		{"whitespace before token", 3, 1, "path"},
		{"final token", strings.Index(sample, "stillness"), 11, "stillness"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := Compute(sample, tt.rangeStart)
			if err != nil {
				t.Fatalf("Compute(%d) error: %v", tt.rangeStart, err)
			}
			if addr.WordIndex != tt.wantIndex {
				t.Errorf("WordIndex = %d; want %d", addr.WordIndex, tt.wantIndex)
			}
			if addr.AnchorToken != tt.wantAnchor {
				t.Errorf("AnchorToken = %q; want %q", addr.AnchorToken, tt.wantAnchor)
			}
		})
	}
}

func TestCompute_OutOfBounds(t *testing.T) {
	if _, err := Compute(sample, -1); err == nil {
		t.Error("Compute(-1) should fail")
	}
	if _, err := Compute(sample, len(sample)+1); err == nil {
		t.Error("Compute past end should fail")
	}
	if _, err := Compute("", 0); err == nil {
		t.Error("Compute on empty text should fail")
	}
}

func TestCompute_TrailingWhitespace(t *testing.T) {
	text := "alpha beta   "
	addr, err := Compute(text, len(text))
	if err != nil {
		t.Fatalf("Compute error: %v", err)
	}
	// Anchors to the last token rather than failing.
	if addr.WordIndex != 1 || addr.AnchorToken != "beta" {
		t.Errorf("got (%d, %q); want (1, \"beta\")", addr.WordIndex, addr.AnchorToken)
	}
}

func TestResolve_RoundTrip(t *testing.T) {
	// Round-trip property: resolving a computed address locates text equal to
	// the original anchor token.
	tokens := Tokenize(sample)
	for _, tok := range tokens {
		addr, err := Compute(sample, tok.Start)
		if err != nil {
			t.Fatalf("Compute(%d) error: %v", tok.Start, err)
		}
		rng, err := Resolve(sample, addr)
		if err != nil {
			t.Fatalf("Resolve(%+v) error: %v", addr, err)
		}
		if got := sample[rng.Start:rng.End]; got != tok.Text {
			t.Errorf("round trip at %d located %q; want %q", tok.Start, got, tok.Text)
		}
	}
}

func TestCompute_Monotonicity(t *testing.T) {
	var prev uint
	for start := 0; start <= len(sample); start++ {
		addr, err := Compute(sample, start)
		if err != nil {
			t.Fatalf("Compute(%d) error: %v", start, err)
		}
		if addr.WordIndex < prev {
			t.Fatalf("WordIndex decreased at offset %d: %d < %d", start, addr.WordIndex, prev)
		}
		prev = addr.WordIndex
	}
}

func TestResolve_WhitespaceDrift(t *testing.T) {
	// Address captured against single-spaced text still resolves after
	// whitespace normalization changes spacing.
	addr, err := Compute(sample, strings.Index(sample, "liberation"))
	if err != nil {
		t.Fatalf("Compute error: %v", err)
	}

	drifted := strings.Replace(sample, " of liberation", "  of  liberation", 1)
	rng, err := Resolve(drifted, addr)
	if err != nil {
		t.Fatalf("Resolve against drifted text error: %v", err)
	}
	if got := drifted[rng.Start:rng.End]; got != "liberation" {
		t.Errorf("located %q; want %q", got, "liberation")
	}
}

func TestResolve_IndexOutOfRange(t *testing.T) {
	addr := Address{WordIndex: 9999, AnchorToken: "anything"}
	_, err := Resolve(sample, addr)
	if err == nil {
		t.Fatal("Resolve should fail for out-of-range index")
	}
	if !errors.Is(err, lecterrors.ErrUnresolvable) {
		t.Errorf("error should be ErrUnresolvable; got %v", err)
	}
}

func TestResolve_AnchorNotFound(t *testing.T) {
	// Valid index, but the expected token no longer exists at or after it.
	addr := Address{WordIndex: 3, AnchorToken: "nonexistent"}
	_, err := Resolve(sample, addr)
	if err == nil {
		t.Fatal("Resolve should fail when anchor text is absent")
	}
	if !errors.Is(err, lecterrors.ErrUnresolvable) {
		t.Errorf("error should be ErrUnresolvable; got %v", err)
	}
}

func TestResolve_NeverMatchesBackward(t *testing.T) {
	// The anchor occurs before the approximate offset but not after; forward
	// search must fail rather than match backward.
	text := "unique filler filler filler"
	addr := Address{WordIndex: 2, AnchorToken: "unique"}
	if _, err := Resolve(text, addr); err == nil {
		t.Error("Resolve should not match text preceding the approximate offset")
	}
}

func TestResolve_EmptyAnchor(t *testing.T) {
	if _, err := Resolve(sample, Address{WordIndex: 0}); err == nil {
		t.Error("Resolve should reject an empty anchor token")
	}
}

// fakeSource is a trivial in-memory content source.
type fakeSource struct {
	volumes []string
}

func (f *fakeSource) VolumeCount() int { return len(f.volumes) }

func (f *fakeSource) FlattenedText(volumeIndex int) (string, error) {
	if volumeIndex < 0 || volumeIndex >= len(f.volumes) {
		return "", fmt.Errorf("volume %d out of range", volumeIndex)
	}
	return f.volumes[volumeIndex], nil
}

func TestResolver(t *testing.T) {
	src := &fakeSource{volumes: []string{"first volume text", sample}}
	r := NewResolver(src)

	addr, err := r.ComputeAddress(1, strings.Index(sample, "liberation"))
	if err != nil {
		t.Fatalf("ComputeAddress error: %v", err)
	}
	if addr.AnchorToken != "liberation" {
		t.Errorf("AnchorToken = %q; want %q", addr.AnchorToken, "liberation")
	}

	rng, err := r.ResolveAddress(1, addr)
	if err != nil {
		t.Fatalf("ResolveAddress error: %v", err)
	}
	if got := sample[rng.Start:rng.End]; got != "liberation" {
		t.Errorf("located %q; want %q", got, "liberation")
	}

	// Volume errors propagate.
	if _, err := r.ComputeAddress(5, 0); err == nil {
		t.Error("ComputeAddress should fail for unknown volume")
	}
	if _, err := r.ResolveAddress(5, addr); err == nil {
		t.Error("ResolveAddress should fail for unknown volume")
	}
}

func TestResolver_ErrorCarriesVolume(t *testing.T) {
	src := &fakeSource{volumes: []string{"tiny text"}}
	r := NewResolver(src)

	_, err := r.ResolveAddress(0, Address{WordIndex: 50, AnchorToken: "gone"})
	var re *lecterrors.ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("error should be a ResolutionError; got %v", err)
	}
	if re.VolumeIndex != 0 || re.WordIndex != 50 {
		t.Errorf("ResolutionError = %+v; want volume 0, word 50", re)
	}
}
