package textproc

import (
	"strings"
	"unicode"
)

// MinTokenLength is the shortest token kept by the tokenizer.
const MinTokenLength = 2

// Tokenizer splits cleaned text into index terms. The same instance must be
// used at index time and at query time.
type Tokenizer struct {
	stopwords map[string]struct{}
	slang     *SlangDictionary
}

// NewTokenizer builds a tokenizer over the Indonesian stopword list plus extra.
func NewTokenizer(slang *SlangDictionary, extra ...string) *Tokenizer {
	stop := make(map[string]struct{}, len(indonesianStopwords)+len(customStopwords)+len(extra))
	for _, w := range indonesianStopwords {
		stop[w] = struct{}{}
	}
	for _, w := range customStopwords {
		stop[w] = struct{}{}
	}
	for _, w := range extra {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Tokenizer{stopwords: stop, slang: slang}
}

// Tokenize splits on anything that is not a letter or digit, drops pure
// numbers, expands slang, strips the "-nya" enclitic, removes stopwords and
// tokens shorter than MinTokenLength. Order and duplicates are preserved.
func (t *Tokenizer) Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if isNumeric(f) {
			continue
		}
		if t.slang == nil {
			tokens = t.appendTerm(tokens, f)
			continue
		}
		// A formal form may span several words ("mksh" -> "terima kasih").
		for _, part := range strings.Fields(t.slang.Expand(f)) {
			tokens = t.appendTerm(tokens, part)
		}
	}
	return tokens
}

func (t *Tokenizer) appendTerm(tokens []string, w string) []string {
	w = stripEnclitic(w)
	if len([]rune(w)) < MinTokenLength {
		return tokens
	}
	if _, stop := t.stopwords[w]; stop {
		return tokens
	}
	return append(tokens, w)
}

// IsStopword reports whether w is filtered by this tokenizer.
func (t *Tokenizer) IsStopword(w string) bool {
	_, ok := t.stopwords[strings.ToLower(w)]
	return ok
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// stripEnclitic removes a trailing possessive "nya" when at least three
// runes remain, so "rasanya" and "rasa" share a term.
func stripEnclitic(w string) string {
	if !strings.HasSuffix(w, "nya") {
		return w
	}
	base := strings.TrimSuffix(w, "nya")
	if len([]rune(base)) < 3 {
		return w
	}
	return base
}

// Analyzer is the full text pipeline shared by ingestion and query paths:
// Clean followed by Tokenize.
type Analyzer struct {
	Cleaner   *Cleaner
	Tokenizer *Tokenizer
}

// NewAnalyzer wires a cleaner and tokenizer over the same slang dictionary.
func NewAnalyzer(slang *SlangDictionary) *Analyzer {
	if slang == nil {
		slang = NewSlangDictionary(nil)
	}
	return &Analyzer{
		Cleaner:   NewCleaner(slang),
		Tokenizer: NewTokenizer(slang),
	}
}

// Clean delegates to the cleaner.
func (a *Analyzer) Clean(raw string) string {
	return a.Cleaner.Clean(raw)
}

// Analyze returns the index terms for raw text.
func (a *Analyzer) Analyze(raw string) []string {
	return a.Tokenizer.Tokenize(a.Cleaner.Clean(raw))
}

// TermFrequencies counts tokens.
func TermFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}
