package textproc

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	urlMentionRegex = regexp.MustCompile(`https?\S+|www\.\S+|@\w+`)
	hashtagRegex    = regexp.MustCompile(`#(\w+)`)
	wordPartRegex   = regexp.MustCompile(`[^!?]+`)
)

// Cleaner normalizes raw comment text. It never fails: input that carries
// no signal maps to the empty string and is skipped upstream.
type Cleaner struct {
	slang *SlangDictionary
}

// NewCleaner creates a cleaner. A nil dictionary disables slang expansion.
func NewCleaner(slang *SlangDictionary) *Cleaner {
	return &Cleaner{slang: slang}
}

// Clean lowercases, strips URLs and mentions, unwraps hashtags, compresses
// runs of three or more identical characters, expands slang and keeps only
// letters, digits, whitespace and the emphatic marks ! and ?.
func (c *Cleaner) Clean(raw string) string {
	if raw == "" {
		return ""
	}
	text := strings.ToLower(raw)
	text = urlMentionRegex.ReplaceAllString(text, " ")
	text = hashtagRegex.ReplaceAllString(text, "$1")
	text = CompressRepeats(text)

	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '!' || r == '?' || r == '_' {
			return r
		}
		return ' '
	}, text)

	words := strings.Fields(text)
	if c.slang != nil {
		for i, w := range words {
			// "gak!" expands to "tidak!"
			words[i] = wordPartRegex.ReplaceAllStringFunc(w, c.slang.Expand)
		}
	}
	return strings.Join(words, " ")
}

// CompressRepeats collapses any rune repeated three or more times into a
// single occurrence: "mantaapppp" becomes "mantaap".
func CompressRepeats(s string) string {
	runes := []rune(s)
	if len(runes) < 3 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(runes); {
		j := i + 1
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		if j-i >= 3 {
			b.WriteRune(runes[i])
		} else {
			for k := i; k < j; k++ {
				b.WriteRune(runes[k])
			}
		}
		i = j
	}
	return b.String()
}
