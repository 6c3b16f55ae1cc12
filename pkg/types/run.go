package types

import (
	"fmt"
	"strings"
	"time"
)

// RunState is the lifecycle state of an IngestionRun.
type RunState string

const (
	RunPending    RunState = "PENDING"
	RunAcquiring  RunState = "ACQUIRING"
	RunProcessing RunState = "PROCESSING"
	RunPersisting RunState = "PERSISTING"
	RunCompleted  RunState = "COMPLETED"
	RunPartial    RunState = "PARTIAL"
	RunFailed     RunState = "FAILED"
)

// allowed lists legal successors. Any non-terminal state may fail.
var allowed = map[RunState][]RunState{
	RunPending:    {RunAcquiring, RunFailed},
	RunAcquiring:  {RunProcessing, RunFailed},
	RunProcessing: {RunPersisting, RunFailed},
	RunPersisting: {RunCompleted, RunPartial, RunFailed},
}

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunPartial || s == RunFailed
}

// CanTransition reports whether s -> next is legal.
func (s RunState) CanTransition(next RunState) bool {
	for _, n := range allowed[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Stage names one step of the pipeline.
type Stage string

const (
	StageAcquire   Stage = "acquire"
	StageClean     Stage = "clean"
	StageSentiment Stage = "sentiment"
	StageTopic     Stage = "topic"
	StageEmbed     Stage = "embed"
	StagePersist   Stage = "persist"
	StageExport    Stage = "export"
)

// Stages is the fixed execution order.
var Stages = []Stage{StageAcquire, StageClean, StageSentiment, StageTopic, StageEmbed, StagePersist}

// StageSummary counts outcomes for one stage.
type StageSummary struct {
	Stage     Stage  `json:"stage"`
	Succeeded int    `json:"succeeded"`
	Skipped   int    `json:"skipped"`
	Failed    bool   `json:"failed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ItemFailure records why a single comment was dropped.
type ItemFailure struct {
	CommentID string    `json:"comment_id"`
	Stage     Stage     `json:"stage"`
	Kind      ErrorKind `json:"kind"`
	Reason    string    `json:"reason"`
}

// SuffixPolicy selects how an artifact set is keyed.
type SuffixPolicy string

const (
	// SuffixNone overwrites the corpus of the content item on re-run.
	SuffixNone SuffixPolicy = "none"
	// SuffixTimestamp creates a new artifact set keyed by run time.
	SuffixTimestamp SuffixPolicy = "timestamp"
	// SuffixLabel creates an artifact set keyed by a caller label.
	SuffixLabel SuffixPolicy = "label"
)

// Suffix is a resolved policy plus its label.
type Suffix struct {
	Policy SuffixPolicy `json:"policy"`
	Label  string       `json:"label,omitempty"`
}

// ParseSuffix interprets the SAVE_TS_SUFFIX convention: empty or "none"
// disables suffixing, "AUTO" selects a timestamp and anything else is a label.
func ParseSuffix(v string) Suffix {
	v = strings.TrimSpace(v)
	switch {
	case v == "" || strings.EqualFold(v, "none"):
		return Suffix{Policy: SuffixNone}
	case strings.EqualFold(v, "auto") || strings.EqualFold(v, "timestamp"):
		return Suffix{Policy: SuffixTimestamp}
	default:
		return Suffix{Policy: SuffixLabel, Label: v}
	}
}

// Validate rejects unknown policies and labels missing where required.
func (s Suffix) Validate() error {
	switch s.Policy {
	case "", SuffixNone, SuffixTimestamp:
		return nil
	case SuffixLabel:
		if strings.TrimSpace(s.Label) == "" {
			return fmt.Errorf("%w: label policy requires a label", ErrInvalidSuffixPolicy)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidSuffixPolicy, s.Policy)
}

// Separators reserved in content ids. A set key splits into content id and
// suffix token at the first SetKeySeparator, and a document id splits into
// set key and comment id at the first DocumentIDSeparator.
const (
	SetKeySeparator     = "#"
	DocumentIDSeparator = ":"
)

// SetKey names the document set of contentID. An empty token is the
// unsuffixed set.
func SetKey(contentID, token string) string {
	if token == "" {
		return contentID
	}
	return contentID + SetKeySeparator + token
}

// ValidateContentID rejects empty ids and ids holding a reserved separator.
func ValidateContentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyContentID
	}
	if strings.ContainsAny(id, SetKeySeparator+DocumentIDSeparator) {
		return fmt.Errorf("%w: %q may not contain %q or %q", ErrInvalidContentID, id, SetKeySeparator, DocumentIDSeparator)
	}
	return nil
}

// Artifact references one exported file.
type Artifact struct {
	Kind string `json:"kind"` // json, csv, insight
	Path string `json:"path"`
}

// Run is the persisted record of one IngestionRun.
type Run struct {
	ID          string         `json:"id"`
	ContentID   string         `json:"content_id"`
	SetKey      string         `json:"set_key"`
	Locator     string         `json:"locator"`
	ContentDate string         `json:"content_date"`
	MaxComments int            `json:"max_comments"`
	Suffix      Suffix         `json:"suffix"`
	State       RunState       `json:"state"`
	Stages      []StageSummary `json:"stages"`
	Failures    []ItemFailure  `json:"failures,omitempty"`
	Artifacts   []Artifact     `json:"artifacts,omitempty"`
	ErrorKind   ErrorKind      `json:"error_kind,omitempty"`
	Error       string         `json:"error,omitempty"`
	Persisted   int            `json:"persisted"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}

// Transition moves the run to next, enforcing the state machine.
func (r *Run) Transition(next RunState) error {
	if r.State.Terminal() {
		return fmt.Errorf("%w: run %s is %s", ErrRunFinalized, r.ID, r.State)
	}
	if !r.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, next)
	}
	r.State = next
	if next.Terminal() {
		now := time.Now().UTC()
		r.FinishedAt = &now
	}
	return nil
}

// Stage returns the summary for stage s, creating it if absent.
func (r *Run) Stage(s Stage) *StageSummary {
	for i := range r.Stages {
		if r.Stages[i].Stage == s {
			return &r.Stages[i]
		}
	}
	r.Stages = append(r.Stages, StageSummary{Stage: s})
	return &r.Stages[len(r.Stages)-1]
}
