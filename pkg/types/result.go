package types

// RetrievalResult is one fused candidate, produced per query.
type RetrievalResult struct {
	DocumentID   string
	LexicalScore float64 // raw BM25, 0 when absent from the lexical side
	VectorScore  float64 // raw cosine, 0 when absent from the vector side
	LexicalNorm  float64
	VectorNorm   float64
	FusedScore   float64
	Rank         int // 1-based
}

// Citation is the externally visible shape of a RetrievalResult.
type Citation struct {
	Rank         int            `json:"rank"`
	DocumentID   string         `json:"document_id"`
	Snippet      string         `json:"snippet"`
	Sentiment    Sentiment      `json:"sentiment"`
	TopicID      int            `json:"topic_id"`
	TopicLabel   string         `json:"topic_label"`
	Metadata     map[string]any `json:"metadata"`
	LexicalScore float64        `json:"score_lex"`
	VectorScore  float64        `json:"score_sem"`
	FusedScore   float64        `json:"score_final"`
}

// Validate checks the citation is well-formed.
func (c *Citation) Validate() error {
	if c.DocumentID == "" {
		return ErrEmptyDocumentID
	}
	if c.Rank < 1 {
		return ErrInvalidRank
	}
	return nil
}

// Answer is the query surface response.
type Answer struct {
	Query   string     `json:"query"`
	Answer  string     `json:"answer"`
	Sources []Citation `json:"sources"`
	// Generated is false when no generator is configured or it failed.
	Generated       bool   `json:"generated"`
	GenerationError string `json:"generation_error,omitempty"`
}
