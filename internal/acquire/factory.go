package acquire

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config selects and configures an acquirer.
type Config struct {
	Provider          string
	Token             string
	Actor             string
	BaseURL           string
	PollInterval      time.Duration
	MaxWait           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	FilePath          string
}

// New builds the configured acquirer.
func New(cfg Config, logger *slog.Logger) (Acquirer, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderApify, "":
		a, err := NewApify(ApifyConfig{
			BaseURL:           cfg.BaseURL,
			Token:             cfg.Token,
			Actor:             cfg.Actor,
			PollInterval:      cfg.PollInterval,
			MaxWait:           cfg.MaxWait,
			MaxRetries:        cfg.MaxRetries,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Logger:            logger,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case ProviderFile:
		return &File{Path: cfg.FilePath}, nil
	default:
		return nil, fmt.Errorf("unknown acquisition provider %q", cfg.Provider)
	}
}
