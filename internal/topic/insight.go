package topic

import (
	"fmt"
	"sort"

	"github.com/dshills/sentirag/pkg/types"
)

const (
	maxExamples   = 2
	exampleLength = 80
)

// Item is one annotated comment as seen by the insight builder.
type Item struct {
	Text       string
	TopicID    int
	TopicLabel string
	Keywords   []string
	Sentiment  types.Sentiment
}

// BuildInsight summarizes a finalized batch. Outliers count toward the
// total but never become a topic of their own unless every item is one.
func BuildInsight(contentID, date string, items []Item) types.Insight {
	ins := types.Insight{
		ContentID:       contentID,
		Date:            date,
		TotalComments:   len(items),
		TopicDetails:    []types.TopicDetail{},
		SentimentCounts: map[types.Sentiment]int{},
	}
	if len(items) == 0 {
		ins.DominantTopic = "N/A"
		ins.Summary = "No insight available."
		return ins
	}
	for _, it := range items {
		if it.Sentiment != "" {
			ins.SentimentCounts[it.Sentiment]++
		}
	}

	type group struct {
		label string
		first int
		items []Item
	}
	byLabel := map[string]*group{}
	var groups []*group
	for i, it := range items {
		if it.TopicID == types.OutlierTopicID {
			continue
		}
		g, ok := byLabel[it.TopicLabel]
		if !ok {
			g = &group{label: it.TopicLabel, first: i}
			byLabel[it.TopicLabel] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, it)
	}

	total := float64(len(items))
	if len(groups) == 0 {
		ins.DominantTopic = types.OutlierTopicLabel
		ins.DominantTopicPercentage = 100
		ins.Summary = fmt.Sprintf(
			"Dari %d komentar, mayoritas tidak memuat kata-kata yang dapat dimodelkan (%.1f%% '%s').",
			len(items), 100.0, types.OutlierTopicLabel)
		return ins
	}

	sort.SliceStable(groups, func(a, b int) bool {
		if len(groups[a].items) != len(groups[b].items) {
			return len(groups[a].items) > len(groups[b].items)
		}
		return groups[a].first < groups[b].first
	})

	ins.NumTopics = len(groups)
	for _, g := range groups {
		examples := make([]string, 0, maxExamples)
		for _, it := range g.items[:min(maxExamples, len(g.items))] {
			examples = append(examples, truncateRunes(it.Text, exampleLength))
		}
		keywords := g.items[0].Keywords
		if keywords == nil {
			keywords = []string{}
		}
		ins.TopicDetails = append(ins.TopicDetails, types.TopicDetail{
			Topic:      g.label,
			Percentage: float64(len(g.items)) / total * 100,
			Count:      len(g.items),
			Keywords:   keywords,
			Examples:   examples,
		})
	}
	dominant := ins.TopicDetails[0]
	ins.DominantTopic = dominant.Topic
	ins.DominantTopicPercentage = dominant.Percentage
	ins.Summary = fmt.Sprintf("Dari %d komentar, audiens paling banyak membahas '%s' (%.1f%%).",
		len(items), dominant.Topic, dominant.Percentage)
	return ins
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
