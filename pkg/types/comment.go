package types

import (
	"fmt"
	"strings"
	"time"
)

// Sentiment is the polarity assigned to a comment.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment accepts the three labels case-insensitively.
func ParseSentiment(s string) (Sentiment, error) {
	switch Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case SentimentPositive:
		return SentimentPositive, nil
	case SentimentNeutral:
		return SentimentNeutral, nil
	case SentimentNegative:
		return SentimentNegative, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSentiment, s)
}

// OutlierTopicID marks a comment the topic model could not place.
const OutlierTopicID = -1

// OutlierTopicLabel is the label attached to OutlierTopicID.
const OutlierTopicLabel = "Lainnya"

// Comment is a raw comment as returned by acquisition. Immutable once acquired.
type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id,omitempty"` // anonymized
	Timestamp time.Time `json:"timestamp,omitempty"`
	ContentID string    `json:"content_id"`
}

// AnnotatedComment is a Comment enriched by the pipeline. Records are never
// updated in place; a re-run produces new ones under a new RunID.
type AnnotatedComment struct {
	Comment
	RunID       string    `json:"run_id"`
	CleanedText string    `json:"cleaned_text"`
	Sentiment   Sentiment `json:"sentiment"`
	Confidence  float64   `json:"confidence"`
	TopicID     int       `json:"topic_id"`
	TopicLabel  string    `json:"topic_label"`
	Keywords    []string  `json:"keywords,omitempty"`
}

// Validate checks label and confidence bounds.
func (c *AnnotatedComment) Validate() error {
	if c.ID == "" {
		return ErrEmptyDocumentID
	}
	if _, err := ParseSentiment(string(c.Sentiment)); err != nil {
		return err
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return ErrInvalidConfidence
	}
	return nil
}

// Document is the queryable unit shared by both indexes. ID is derived from
// the artifact set and the comment id so that re-ingestion overwrites.
type Document struct {
	ID          string    `json:"document_id"`
	SetKey      string    `json:"set_key"`
	RunID       string    `json:"run_id"`
	CommentID   string    `json:"comment_id"`
	ContentID   string    `json:"content_id"`
	ContentDate string    `json:"content_date,omitempty"`
	Text        string    `json:"text"`
	Sentiment   Sentiment `json:"sentiment"`
	Confidence  float64   `json:"confidence"`
	TopicID     int       `json:"topic_id"`
	TopicLabel  string    `json:"topic_label"`
	Tokens      []string  `json:"-"`
	Vector      []float32 `json:"-"`
}

// DocumentID builds the content-addressed id for a comment in a set.
func DocumentID(setKey, commentID string) string {
	return setKey + DocumentIDSeparator + commentID
}

// Metadata returns the citation metadata for the document.
func (d *Document) Metadata() map[string]any {
	return map[string]any{
		"document_id":  d.ID,
		"comment_id":   d.CommentID,
		"content_id":   d.ContentID,
		"content_date": d.ContentDate,
		"run_id":       d.RunID,
		"sentiment":    string(d.Sentiment),
		"confidence":   d.Confidence,
		"topic_id":     d.TopicID,
		"topic_label":  d.TopicLabel,
	}
}
