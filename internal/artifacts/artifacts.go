// Package artifacts writes the exported files of a finalized batch: the
// annotated comments as JSON and CSV, and the insight summary as text.
package artifacts

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/sentirag/pkg/types"
)

// Artifact kinds.
const (
	KindJSON    = "json"
	KindCSV     = "csv"
	KindInsight = "insight_txt"
)

const (
	maxSafeLen    = 64
	commentPrefix = "comments_"
	insightPrefix = "insight_"
)

var (
	unsafeRun = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

	// ErrInvalidName is returned by Resolve for names outside the export set.
	ErrInvalidName = errors.New("invalid artifact name")
)

// SafeID turns an arbitrary content id into a file-name fragment.
func SafeID(s string) string {
	s = strings.Trim(unsafeRun.ReplaceAllString(s, "_"), "_")
	if len(s) > maxSafeLen {
		s = s[:maxSafeLen]
	}
	if s == "" {
		return "content"
	}
	return s
}

// FileID is SafeID plus, when sanitizing changed s, a hash of the raw
// value so that distinct ids never share a file name.
func FileID(s string) string {
	safe := SafeID(s)
	if safe == s {
		return safe
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%s~%08x", safe, h.Sum32())
}

// SuffixToken renders a suffix policy as the token used in set keys and
// file names. Timestamps carry microseconds.
func SuffixToken(s types.Suffix, now time.Time) string {
	switch s.Policy {
	case types.SuffixTimestamp:
		return now.UTC().Format("20060102-150405.000000")
	case types.SuffixLabel:
		return FileID(s.Label)
	default:
		return ""
	}
}

// Names returns the three file names for a content id and suffix token.
// The content part never contains a dot, so the first dot separates it
// from the token.
func Names(contentID, token string) map[string]string {
	base := FileID(contentID)
	if token != "" {
		base += "." + token
	}
	return map[string]string{
		KindJSON:    commentPrefix + base + ".json",
		KindCSV:     commentPrefix + base + ".csv",
		KindInsight: insightPrefix + base + ".txt",
	}
}

// Exporter writes artifact files into a single directory.
type Exporter struct {
	dir string
}

// NewExporter creates dir if needed.
func NewExporter(dir string) (*Exporter, error) {
	if dir == "" {
		return nil, fmt.Errorf("export dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &Exporter{dir: dir}, nil
}

// Dir returns the export directory.
func (e *Exporter) Dir() string { return e.dir }

// Export writes all three files. Each file is written to a temporary name
// and renamed so readers never observe a partial file. On error the
// artifacts written so far are still returned.
func (e *Exporter) Export(contentID, token string, comments []types.AnnotatedComment, insight types.Insight) ([]types.Artifact, error) {
	names := Names(contentID, token)
	var written []types.Artifact

	steps := []struct {
		kind   string
		render func() ([]byte, error)
	}{
		{KindJSON, func() ([]byte, error) { return renderJSON(comments) }},
		{KindCSV, func() ([]byte, error) { return renderCSV(comments) }},
		{KindInsight, func() ([]byte, error) { return []byte(RenderInsight(insight)), nil }},
	}
	for _, s := range steps {
		data, err := s.render()
		if err != nil {
			return written, fmt.Errorf("render %s: %w", s.kind, err)
		}
		path := filepath.Join(e.dir, names[s.kind])
		if err := writeAtomic(path, data); err != nil {
			return written, fmt.Errorf("write %s: %w", names[s.kind], err)
		}
		written = append(written, types.Artifact{Kind: s.kind, Path: path})
	}
	return written, nil
}

// Resolve maps a bare file name to its path, accepting only names this
// package produces.
func (e *Exporter) Resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	ext := filepath.Ext(name)
	switch {
	case strings.HasPrefix(name, commentPrefix) && (ext == ".json" || ext == ".csv"):
	case strings.HasPrefix(name, insightPrefix) && ext == ".txt":
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(e.dir, name), nil
}

type exportRow struct {
	DocumentID string          `json:"document_id"`
	CommentID  string          `json:"comment_id"`
	Text       string          `json:"text"`
	Cleaned    string          `json:"cleaned_text"`
	Sentiment  types.Sentiment `json:"sentiment"`
	Confidence float64         `json:"confidence"`
	TopicID    int             `json:"topic_id"`
	TopicLabel string          `json:"topic_label"`
	Keywords   []string        `json:"keywords"`
	Timestamp  string          `json:"timestamp,omitempty"`
	RunID      string          `json:"run_id"`
}

func toRow(c types.AnnotatedComment) exportRow {
	r := exportRow{
		DocumentID: c.ContentID,
		CommentID:  c.ID,
		Text:       c.Text,
		Cleaned:    c.CleanedText,
		Sentiment:  c.Sentiment,
		Confidence: c.Confidence,
		TopicID:    c.TopicID,
		TopicLabel: c.TopicLabel,
		Keywords:   c.Keywords,
		RunID:      c.RunID,
	}
	if r.Keywords == nil {
		r.Keywords = []string{}
	}
	if !c.Timestamp.IsZero() {
		r.Timestamp = c.Timestamp.UTC().Format(time.RFC3339)
	}
	return r
}

func renderJSON(comments []types.AnnotatedComment) ([]byte, error) {
	rows := make([]exportRow, len(comments))
	for i, c := range comments {
		rows[i] = toRow(c)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var csvHeader = []string{
	"document_id", "comment_id", "text", "cleaned_text", "sentiment",
	"confidence", "topic_id", "topic_label", "keywords", "timestamp", "run_id",
}

// renderCSV writes a UTF-8 BOM first so spreadsheet tools detect the encoding.
func renderCSV(comments []types.AnnotatedComment) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, c := range comments {
		r := toRow(c)
		record := []string{
			r.DocumentID, r.CommentID, r.Text, r.Cleaned, string(r.Sentiment),
			strconv.FormatFloat(r.Confidence, 'f', 4, 64),
			strconv.Itoa(r.TopicID), r.TopicLabel,
			strings.Join(r.Keywords, "|"), r.Timestamp, r.RunID,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderInsight formats the insight report as plain text. The summary
// sentence always comes first.
func RenderInsight(ins types.Insight) string {
	var b strings.Builder
	b.WriteString(ins.Summary)
	b.WriteString("\n")
	if len(ins.TopicDetails) > 0 {
		b.WriteString("\nTopik:\n")
		for _, d := range ins.TopicDetails {
			fmt.Fprintf(&b, "- %s (%.1f%%, %d komentar)", d.Topic, d.Percentage, d.Count)
			if len(d.Keywords) > 0 {
				fmt.Fprintf(&b, ": %s", strings.Join(d.Keywords, ", "))
			}
			b.WriteString("\n")
		}
	}
	if len(ins.SentimentCounts) > 0 {
		b.WriteString("\nSentimen:\n")
		for _, s := range []types.Sentiment{types.SentimentPositive, types.SentimentNeutral, types.SentimentNegative} {
			fmt.Fprintf(&b, "- %s: %d\n", s, ins.SentimentCounts[s])
		}
	}
	return b.String()
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
