// Package sentiment assigns a polarity label and confidence to comment text.
package sentiment

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/sentirag/pkg/types"
)

// Provider names.
const (
	ProviderHuggingFace = "huggingface"
	ProviderLexicon     = "lexicon"
)

// Result is one classification.
type Result struct {
	Label      types.Sentiment             `json:"sentiment"`
	Confidence float64                     `json:"confidence"`
	Scores     map[types.Sentiment]float64 `json:"scores,omitempty"`
}

// Classifier labels text. Errors wrap types.ErrClassification.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
	Name() string
}

// labelMap translates model output labels. Unknown labels are lowercased
// and parsed as sentiment names.
var labelMap = map[string]types.Sentiment{
	"LABEL_0": types.SentimentNegative,
	"LABEL_1": types.SentimentNeutral,
	"LABEL_2": types.SentimentPositive,
}

// MapLabel resolves a model label onto the three sentiments.
func MapLabel(label string) (types.Sentiment, error) {
	if s, ok := labelMap[strings.ToUpper(label)]; ok {
		return s, nil
	}
	return types.ParseSentiment(label)
}

// top picks the highest score. Ties resolve neutral, then negative, then
// positive so the outcome never depends on map order.
func top(scores map[types.Sentiment]float64) (types.Sentiment, float64, error) {
	if len(scores) == 0 {
		return "", 0, fmt.Errorf("%w: empty score set", types.ErrClassification)
	}
	var (
		best  types.Sentiment
		score = -1.0
	)
	for _, s := range []types.Sentiment{types.SentimentNeutral, types.SentimentNegative, types.SentimentPositive} {
		if v, ok := scores[s]; ok && v > score {
			best, score = s, v
		}
	}
	if best == "" {
		return "", 0, fmt.Errorf("%w: no known labels in scores", types.ErrClassification)
	}
	return best, score, nil
}

// Predict classifies each text in order, stopping at the first error.
func Predict(ctx context.Context, c Classifier, texts []string) ([]Result, error) {
	out := make([]Result, len(texts))
	for i, t := range texts {
		r, err := c.Classify(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}
