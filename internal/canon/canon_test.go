package canon

import (
	"strings"
	"testing"
)

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a   b\t\nc", "a b c"},
		{"  leading and trailing  ", "leading and trailing"},
		{"\u00a0nbsp\u00a0\u2003em space", "nbsp em space"},
		{" \t\n ", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeWhitespace(tt.in); got != tt.want {
			t.Errorf("NormalizeWhitespace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStandardizePunctuation(t *testing.T) {
	got := StandardizePunctuation("\u201chello\u201d \u2013 world")
	if got != `"hello" - world` {
		t.Errorf("unexpected result %q", got)
	}

	got = StandardizePunctuation("\u00abit\u2019s\u00bb \u2014 `fine` \u2015 \u201elow\u201a")
	if got != `"it's" - 'fine' - "low'` {
		t.Errorf("unexpected result %q", got)
	}
}

func TestCanonicalizeExamples(t *testing.T) {
	if got := Canonicalize("a   b\t\nc"); got != "a b c" {
		t.Errorf("expected %q, got %q", "a b c", got)
	}
	if got := Canonicalize("\u201chello\u201d \u2013 world"); got != `"hello" - world` {
		t.Errorf("expected %q, got %q", `"hello" - world`, got)
	}
	if got := Canonicalize(""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
	if got := Canonicalize("   \n\t "); got != "" {
		t.Errorf("expected empty for whitespace-only input, got %q", got)
	}
}

func TestDescribeSingleEmoji(t *testing.T) {
	got := Canonicalize("Great food \U0001f60d")
	if got != "Great food [smiling face with heart-eyes]" {
		t.Errorf("unexpected description %q", got)
	}
	if strings.ContainsRune(got, '\U0001f60d') {
		t.Error("raw emoji survived canonicalization")
	}
}

func TestDescribeEmojiLeavesPlainText(t *testing.T) {
	text := "Plain text, numbers 123 and #hash * star"
	if got := DescribeEmoji(text); got != text {
		t.Errorf("expected unchanged text, got %q", got)
	}
}

func TestDescribeEmojiPrefersLongestSequence(t *testing.T) {
	// thumbs up with a skin tone modifier is a single emoji, not two
	got := DescribeEmoji("\U0001f44d\U0001f3fd")
	if strings.Count(got, "[") != 1 {
		t.Errorf("expected one description, got %q", got)
	}
	if got != "[thumbsup tone3]" {
		t.Errorf("expected toned thumbs up description, got %q", got)
	}
}

func TestDecodeEscapedEmoji(t *testing.T) {
	got := DecodeEscapedEmoji(`loved it \ud83d\ude0d!`)
	if got != "loved it \U0001f60d!" {
		t.Errorf("unexpected decode %q", got)
	}

	lone := `broken \ud83d here`
	if got := DecodeEscapedEmoji(lone); got != lone {
		t.Errorf("expected lone surrogate escape untouched, got %q", got)
	}

	got = Canonicalize(`loved it \ud83d\ude0d`)
	if got != "loved it [smiling face with heart-eyes]" {
		t.Errorf("expected escaped emoji to be described, got %q", got)
	}
}

func TestDecodeEscapedBMPEmoji(t *testing.T) {
	got := DecodeEscapedEmoji(`love \u2764\ufe0f it`)
	if got != "love \u2764\ufe0f it" {
		t.Errorf("unexpected decode %q", got)
	}

	accent := `caf\u00e9`
	if got := DecodeEscapedEmoji(accent); got != accent {
		t.Errorf("expected non-emoji escape untouched, got %q", got)
	}

	name, ok := EmojiName("\u2764\ufe0f")
	if !ok {
		t.Fatal("expected red heart to be known")
	}
	if got := Canonicalize(`love \u2764\ufe0f it`); got != "love ["+name+"] it" {
		t.Errorf("expected escaped heart to be described, got %q", got)
	}
}

func TestDescribeBareSymbols(t *testing.T) {
	for _, sym := range []string{"\u00a9", "\u2122"} {
		name, ok := EmojiName(sym)
		if !ok {
			t.Fatalf("expected %q to be known without a presentation selector", sym)
		}
		if got := DescribeEmoji(sym + " 2020"); got != "["+name+"] 2020" {
			t.Errorf("unexpected description %q", got)
		}
	}
}

func TestEmojiName(t *testing.T) {
	name, ok := EmojiName("\U0001f600")
	if !ok {
		t.Fatal("expected grinning face to be known")
	}
	if name != "grinning face" {
		t.Errorf("expected 'grinning face', got %q", name)
	}
	if _, ok := EmojiName("x"); ok {
		t.Error("expected plain letter to be unknown")
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	corpus := []string{
		"",
		"   ",
		"Best pizza in town!!! \U0001f355\U0001f355",
		"\u201cAmazing\u201d service \u2014 would come back \U0001f44d\U0001f3fb",
		"Call 802-555-0199\n\nor visit www.example.com",
		`escaped \ud83d\ude00 grin`,
		"Flags \U0001f1e8\U0001f1ee and \U0001f1fa\U0001f1f8 family \U0001f468\u200d\U0001f469\u200d\U0001f467",
		"`ticks` \u2018single\u2019 \u201elow\u201d \u00abguillemets\u00bb",
		"\u2764\ufe0f love \u2764",
		"tabs\tand\r\nnewlines",
	}
	for _, in := range corpus {
		once := Canonicalize(in)
		twice := Canonicalize(once)
		if once != twice {
			t.Errorf("not idempotent for %q:\n once:  %q\n twice: %q", in, once, twice)
		}
	}
}
