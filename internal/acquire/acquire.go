// Package acquire fetches raw comments for a content item from a scraping
// backend or from a local file.
package acquire

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/sentirag/pkg/types"
)

// Provider names.
const (
	ProviderApify = "apify"
	ProviderFile  = "file"
)

// Acquirer returns at most max comments for locator. Any failure, including
// an empty result, wraps types.ErrAcquisition.
type Acquirer interface {
	Fetch(ctx context.Context, locator string, max int) ([]types.Comment, error)
}

// textKeys are probed in order when a dataset item has no "text" field.
var textKeys = []string{
	"text", "comment", "commentText", "content", "comment_text", "desc",
	"body", "message", "caption", "title",
}

// ExtractText returns the comment text of a raw item. Top-level keys win;
// otherwise nested objects and arrays are searched depth first.
func ExtractText(item map[string]any) string {
	for _, k := range textKeys {
		if s, ok := item[k].(string); ok {
			if s = cleanText(s); s != "" {
				return s
			}
		}
	}
	for _, k := range sortedKeys(item) {
		if s := extractNested(item[k]); s != "" {
			return s
		}
	}
	return ""
}

func extractNested(v any) string {
	switch x := v.(type) {
	case map[string]any:
		return ExtractText(x)
	case []any:
		for _, e := range x {
			if s := extractNested(e); s != "" {
				return s
			}
		}
	}
	return ""
}

func cleanText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\u200b", ""))
}

// Normalize converts raw dataset items into comments, dropping items
// without text and keeping at most max (max <= 0 keeps all).
func Normalize(items []map[string]any, max int) []types.Comment {
	out := make([]types.Comment, 0, len(items))
	for i, item := range items {
		if max > 0 && len(out) == max {
			break
		}
		text := ExtractText(item)
		if text == "" {
			continue
		}
		out = append(out, types.Comment{
			ID:        commentID(item, i),
			Text:      text,
			AuthorID:  anonymize(authorOf(item)),
			Timestamp: timestampOf(item),
		})
	}
	return out
}

func commentID(item map[string]any, i int) string {
	for _, k := range []string{"commentId", "id", "cid"} {
		switch v := item[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return fmt.Sprintf("c_%d", i)
}

func authorOf(item map[string]any) string {
	for _, k := range []string{"uniqueId", "username", "author"} {
		if s, ok := item[k].(string); ok && s != "" {
			return s
		}
	}
	if user, ok := item["user"].(map[string]any); ok {
		if s, ok := user["uniqueId"].(string); ok {
			return s
		}
	}
	return ""
}

// anonymize replaces a handle with a stable opaque id.
func anonymize(author string) string {
	if author == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(author))
	return "u_" + hex.EncodeToString(sum[:6])
}

func timestampOf(item map[string]any) time.Time {
	if s, ok := item["createTimeISO"].(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}
	if f, ok := item["createTime"].(float64); ok && f > 0 {
		return time.Unix(int64(f), 0).UTC()
	}
	return time.Time{}
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
