package canon

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/kyokomi/emoji/v2"
)

// escapeRun matches one or more \uXXXX escapes written out literally, which
// is how some exports store emoji.
var escapeRun = regexp.MustCompile(`(?:\\u[0-9a-fA-F]{4})+`)

var (
	emojiOnce     sync.Once
	emojiNames    map[string]string
	emojiReplacer *strings.Replacer
)

// DescribeEmoji decodes escaped emoji and replaces every emoji with its name
// in square brackets, e.g. "[thumbs up]". Text without emoji is returned
// unchanged.
func DescribeEmoji(text string) string {
	if text == "" {
		return ""
	}
	text = DecodeEscapedEmoji(text)
	emojiOnce.Do(buildEmojiTable)
	return emojiReplacer.Replace(text)
}

// DecodeEscapedEmoji turns runs of literal \uXXXX escapes into the
// characters they encode, surrogate pairs included, when every decoded
// character belongs to an emoji sequence. Other escapes and unpaired
// surrogates are left alone.
func DecodeEscapedEmoji(text string) string {
	if !strings.Contains(text, `\u`) {
		return text
	}
	return escapeRun.ReplaceAllStringFunc(text, func(m string) string {
		units := make([]uint16, 0, len(m)/6)
		for i := 0; i+6 <= len(m); i += 6 {
			u, err := strconv.ParseUint(m[i+2:i+6], 16, 16)
			if err != nil {
				return m
			}
			units = append(units, uint16(u))
		}
		runes := utf16.Decode(units)
		for _, r := range runes {
			if !emojiRune(r) {
				return m
			}
		}
		return string(runes)
	})
}

// emojiRune reports whether r can appear in an emoji sequence: pictographs,
// other symbols, joiners, variation selectors and keycap marks.
func emojiRune(r rune) bool {
	switch r {
	case unicode.ReplacementChar:
		return false
	case 0x200d, 0xfe0e, 0xfe0f, 0x20e3:
		return true
	}
	return r >= 0x1f000 || unicode.Is(unicode.So, r)
}

// EmojiName returns the bracket-free description used for e, and whether e is
// a known emoji.
func EmojiName(e string) (string, bool) {
	emojiOnce.Do(buildEmojiTable)
	name, ok := emojiNames[e]
	return name, ok
}

func buildEmojiTable() {
	rev := emoji.RevCodeMap()

	emojiNames = make(map[string]string, len(rev))
	for code, aliases := range rev {
		if code == "" || len(aliases) == 0 {
			continue
		}
		emojiNames[code] = describe(aliases)
	}
	// Symbols such as © and ™ are listed with their emoji presentation
	// selector but usually appear bare in text.
	bare := make(map[string]string)
	for code, name := range emojiNames {
		b, ok := strings.CutSuffix(code, "\ufe0f")
		if !ok {
			continue
		}
		if r, size := utf8.DecodeRuneInString(b); size == 0 || size != len(b) || r < 0x80 {
			continue
		}
		if _, exists := emojiNames[b]; !exists {
			bare[b] = name
		}
	}
	for b, name := range bare {
		emojiNames[b] = name
	}

	codes := make([]string, 0, len(emojiNames))
	for code := range emojiNames {
		codes = append(codes, code)
	}
	// strings.Replacer tries pairs in argument order, so longer sequences
	// (skin tones, ZWJ families, flags) must come before their prefixes.
	sort.Slice(codes, func(i, j int) bool {
		if len(codes[i]) != len(codes[j]) {
			return len(codes[i]) > len(codes[j])
		}
		return codes[i] < codes[j]
	})

	pairs := make([]string, 0, 2*len(codes))
	for _, code := range codes {
		pairs = append(pairs, code, "["+emojiNames[code]+"]")
	}
	emojiReplacer = strings.NewReplacer(pairs...)
}

// describe picks the most descriptive alias (the longest, ties broken
// alphabetically) and spells it out.
func describe(aliases []string) string {
	best := ""
	for _, a := range aliases {
		a = strings.Trim(a, ":")
		if len(a) > len(best) || (len(a) == len(best) && a < best) {
			best = a
		}
	}
	name := strings.ReplaceAll(best, "_", " ")
	return NormalizeWhitespace(StandardizePunctuation(name))
}
