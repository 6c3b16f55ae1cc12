package types

// TopicDetail summarizes one topic within a content item.
type TopicDetail struct {
	Topic      string   `json:"topic"`
	Percentage float64  `json:"percentage"`
	Count      int      `json:"count"`
	Keywords   []string `json:"keywords"`
	Examples   []string `json:"examples"`
}

// Insight is the per-artifact-set topic report.
type Insight struct {
	ContentID               string            `json:"content_id"`
	Date                    string            `json:"date"`
	TotalComments           int               `json:"total_comments"`
	NumTopics               int               `json:"num_topics"`
	DominantTopic           string            `json:"dominant_topic"`
	DominantTopicPercentage float64           `json:"dominant_topic_percentage"`
	TopicDetails            []TopicDetail     `json:"topic_details"`
	Summary                 string            `json:"summary"`
	SentimentCounts         map[Sentiment]int `json:"sentiment_counts"`
}
