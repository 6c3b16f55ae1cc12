package sentiment

import (
	"fmt"
	"strings"

	"github.com/dshills/sentirag/internal/textproc"
)

// Config selects and configures a classifier.
type Config struct {
	Provider          string
	Endpoint          string
	Model             string
	Token             string
	RequestsPerSecond float64
}

// New builds the configured classifier.
func New(cfg Config, cleaner *textproc.Cleaner) (Classifier, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderHuggingFace:
		h, err := NewHuggingFace(HuggingFaceConfig{
			Endpoint:          cfg.Endpoint,
			Model:             cfg.Model,
			Token:             cfg.Token,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		return h, nil
	case ProviderLexicon, "":
		return NewLexicon(cleaner), nil
	default:
		return nil, fmt.Errorf("unknown sentiment provider %q", cfg.Provider)
	}
}
