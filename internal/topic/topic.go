// Package topic groups a batch of comments into keyword topics and builds
// the per-content insight report from the result.
package topic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/sentirag/internal/textproc"
	"github.com/dshills/sentirag/pkg/types"
)

// Defaults used when Config fields are zero.
const (
	DefaultMinTopicSize = 3
	DefaultMaxTopics    = 8
	MaxKeywords         = 5
	labelKeywords       = 3
)

// Assignment is the topic of one text.
type Assignment struct {
	TopicID  int      `json:"topic_id"`
	Label    string   `json:"topic_label"`
	Keywords []string `json:"keywords,omitempty"`
}

// Model assigns topics to a whole batch at once. An error fails the whole
// batch and wraps types.ErrClassification.
type Model interface {
	Assign(ctx context.Context, texts []string) ([]Assignment, error)
}

// Config tunes the keyword model.
type Config struct {
	MinTopicSize int
	MaxTopics    int
}

// KeywordModel clusters texts around their most widely shared terms.
// Topics are relative to the batch: ids restart at 0 on every call.
type KeywordModel struct {
	tokenizer    *textproc.Tokenizer
	minTopicSize int
	maxTopics    int
}

// NewKeywordModel builds the model. tokenizer may be nil.
func NewKeywordModel(cfg Config, tokenizer *textproc.Tokenizer) *KeywordModel {
	if tokenizer == nil {
		tokenizer = textproc.NewTokenizer(textproc.NewSlangDictionary(nil))
	}
	if cfg.MinTopicSize <= 0 {
		cfg.MinTopicSize = DefaultMinTopicSize
	}
	if cfg.MaxTopics <= 0 {
		cfg.MaxTopics = DefaultMaxTopics
	}
	return &KeywordModel{tokenizer: tokenizer, minTopicSize: cfg.MinTopicSize, maxTopics: cfg.MaxTopics}
}

// EffectiveMinSize scales the minimum cluster size down for small batches.
func EffectiveMinSize(configured, nonEmpty int) int {
	if nonEmpty <= 5 {
		return 2
	}
	m := configured
	if nonEmpty/5 < m {
		m = nonEmpty / 5
	}
	if m < 2 {
		m = 2
	}
	return m
}

func (m *KeywordModel) Assign(ctx context.Context, texts []string) ([]Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: topic model: %w", types.ErrClassification, err)
	}

	out := make([]Assignment, len(texts))
	for i := range out {
		out[i] = outlier()
	}

	docs := make([]map[string]int, len(texts))
	nonEmpty := 0
	for i, t := range texts {
		tf := textproc.TermFrequencies(m.tokenizer.Tokenize(t))
		docs[i] = tf
		if len(tf) > 0 {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return out, nil
	}
	minSize := EffectiveMinSize(m.minTopicSize, nonEmpty)

	type cluster struct {
		seed    string
		members []int
	}
	var clusters []cluster
	assigned := make([]bool, len(texts))

	for len(clusters) < m.maxTopics {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: topic model: %w", types.ErrClassification, err)
		}
		// Document frequency over the still unassigned texts.
		df := map[string]int{}
		for i, tf := range docs {
			if assigned[i] {
				continue
			}
			for term := range tf {
				df[term]++
			}
		}
		seed, best := "", 0
		for term, n := range df {
			if n > best || (n == best && term < seed) {
				seed, best = term, n
			}
		}
		if best < minSize {
			break
		}
		c := cluster{seed: seed}
		for i, tf := range docs {
			if !assigned[i] && tf[seed] > 0 {
				assigned[i] = true
				c.members = append(c.members, i)
			}
		}
		clusters = append(clusters, c)
	}

	// Larger topics get lower ids; equal sizes keep discovery order.
	sort.SliceStable(clusters, func(a, b int) bool {
		return len(clusters[a].members) > len(clusters[b].members)
	})

	for id, c := range clusters {
		keywords := topKeywords(c.seed, c.members, docs)
		label := strings.Join(keywords[:min(labelKeywords, len(keywords))], " - ")
		for _, i := range c.members {
			out[i] = Assignment{TopicID: id, Label: label, Keywords: keywords}
		}
	}
	return out, nil
}

// topKeywords ranks terms by how many member documents contain them, then
// by total frequency, then alphabetically. The seed always leads.
func topKeywords(seed string, members []int, docs []map[string]int) []string {
	type stat struct {
		term   string
		df, tf int
	}
	stats := map[string]*stat{}
	for _, i := range members {
		for term, n := range docs[i] {
			if term == seed {
				continue
			}
			s, ok := stats[term]
			if !ok {
				s = &stat{term: term}
				stats[term] = s
			}
			s.df++
			s.tf += n
		}
	}
	list := make([]*stat, 0, len(stats))
	for _, s := range stats {
		list = append(list, s)
	}
	sort.Slice(list, func(a, b int) bool {
		if list[a].df != list[b].df {
			return list[a].df > list[b].df
		}
		if list[a].tf != list[b].tf {
			return list[a].tf > list[b].tf
		}
		return list[a].term < list[b].term
	})

	keywords := []string{seed}
	for _, s := range list {
		if len(keywords) == MaxKeywords {
			break
		}
		keywords = append(keywords, s.term)
	}
	return keywords
}

func outlier() Assignment {
	return Assignment{TopicID: types.OutlierTopicID, Label: types.OutlierTopicLabel}
}
