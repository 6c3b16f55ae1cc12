package sentiment

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/dshills/sentirag/internal/textproc"
	"github.com/dshills/sentirag/pkg/types"
)

var positiveWords = []string{
	"bagus", "baik", "mantap", "keren", "enak", "suka", "senang", "puas",
	"murah", "lucu", "cantik", "rekomendasi", "recommended", "terbaik", "top",
	"mantul", "sukses", "hebat", "love", "cinta", "lumayan", "asik", "seru",
	"worth", "cepat", "ramah", "segar", "gurih", "lezat", "nikmat", "rapi",
	"berhasil", "terima", "kasih", "makasih", "semangat", "bermanfaat",
}

var negativeWords = []string{
	"jelek", "buruk", "kecewa", "mahal", "lambat", "lama", "rusak", "parah",
	"benci", "bohong", "penipu", "tipu", "zonk", "hambar", "basi", "kotor",
	"kasar", "gagal", "sedih", "marah", "malas", "males", "ribet", "sampah",
	"nyesel", "menyesal", "payah", "aneh", "bosan", "overprice", "overpriced",
	"amis", "asin", "pahit", "lemot", "error",
}

var negations = map[string]struct{}{
	"tidak": {}, "bukan": {}, "belum": {}, "jangan": {}, "kurang": {}, "tanpa": {},
}

var intensifiers = map[string]float64{
	"banget": 1.5, "sekali": 1.5, "sangat": 1.5, "amat": 1.3, "bgt": 1.5, "pol": 1.5,
}

// Lexicon is an offline rule-based classifier over Indonesian polarity
// words with negation flipping and intensifiers. It needs no network and
// never fails on non-empty input.
type Lexicon struct {
	cleaner  *textproc.Cleaner
	positive map[string]struct{}
	negative map[string]struct{}
}

// NewLexicon builds the classifier. cleaner may be nil.
func NewLexicon(cleaner *textproc.Cleaner) *Lexicon {
	if cleaner == nil {
		cleaner = textproc.NewCleaner(textproc.NewSlangDictionary(nil))
	}
	l := &Lexicon{
		cleaner:  cleaner,
		positive: make(map[string]struct{}, len(positiveWords)),
		negative: make(map[string]struct{}, len(negativeWords)),
	}
	for _, w := range positiveWords {
		l.positive[w] = struct{}{}
	}
	for _, w := range negativeWords {
		l.negative[w] = struct{}{}
	}
	return l
}

func (l *Lexicon) Name() string { return ProviderLexicon }

func (l *Lexicon) Classify(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	cleaned := l.cleaner.Clean(text)
	words := strings.FieldsFunc(cleaned, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return Result{}, fmt.Errorf("%w: no words in %q", types.ErrClassification, text)
	}

	var pos, neg float64
	for i, w := range words {
		var polarity float64
		switch {
		case l.has(l.positive, w):
			polarity = 1
		case l.has(l.negative, w):
			polarity = -1
		default:
			continue
		}
		// "kurang enak": a negation within the previous two words flips.
		for j := i - 1; j >= 0 && j >= i-2; j-- {
			if _, ok := negations[words[j]]; ok {
				polarity = -polarity
				break
			}
		}
		if i+1 < len(words) {
			if m, ok := intensifiers[words[i+1]]; ok {
				polarity *= m
			}
		}
		if polarity > 0 {
			pos += polarity
		} else {
			neg -= polarity
		}
	}
	if strings.Count(cleaned, "!") > 0 && pos+neg > 0 {
		if pos >= neg {
			pos += 0.5
		} else {
			neg += 0.5
		}
	}

	total := pos + neg
	if total == 0 {
		return Result{
			Label:      types.SentimentNeutral,
			Confidence: 0.6,
			Scores: map[types.Sentiment]float64{
				types.SentimentNeutral:  0.6,
				types.SentimentPositive: 0.2,
				types.SentimentNegative: 0.2,
			},
		}, nil
	}

	// Margin drives confidence: a clear majority approaches 0.95.
	margin := (pos - neg) / total
	strength := 1 - math.Exp(-total)
	conf := 0.5 + 0.45*math.Abs(margin)*strength
	scores := map[types.Sentiment]float64{}
	switch {
	case margin > 0:
		scores[types.SentimentPositive] = conf
		scores[types.SentimentNegative] = (1 - conf) / 2
		scores[types.SentimentNeutral] = (1 - conf) / 2
	case margin < 0:
		scores[types.SentimentNegative] = conf
		scores[types.SentimentPositive] = (1 - conf) / 2
		scores[types.SentimentNeutral] = (1 - conf) / 2
	default:
		conf = 0.5
		scores[types.SentimentNeutral] = conf
		scores[types.SentimentPositive] = 0.25
		scores[types.SentimentNegative] = 0.25
	}
	label, c, err := top(scores)
	if err != nil {
		return Result{}, err
	}
	return Result{Label: label, Confidence: c, Scores: scores}, nil
}

func (l *Lexicon) has(set map[string]struct{}, w string) bool {
	_, ok := set[w]
	return ok
}
