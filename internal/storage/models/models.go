package models

import "time"

// Component types an anchor may reference. Each resolves to one set of
// vectors in the vector store.
const (
	ComponentTag     = "tag"
	ComponentKBItem  = "kb_item"
	ComponentHypoDoc = "hypodoc"
)

// Source tiers driving the enrichment threshold policy.
type Tier int

const (
	TierFixed  Tier = 1
	TierMean   Tier = 2
	TierStrict Tier = 3
)

func (t Tier) String() string {
	switch t {
	case TierFixed:
		return "fixed"
	case TierMean:
		return "mean"
	case TierStrict:
		return "mean_plus_std"
	default:
		return "unknown"
	}
}

// tierByCategory is the static source taxonomy. Categories absent from the
// map fall through to TierStrict.
var tierByCategory = map[string]Tier{
	"Think Tank":         TierFixed,
	"AI Research":        TierFixed,
	"Research Institute": TierFixed,
	"Non-Profit":         TierFixed,
	"Academic":           TierFixed,
	"Advocacy":           TierFixed,
	"Publication":        TierFixed,
	"Business Council":   TierFixed,
	"Government":         TierMean,
	"News Media":         TierStrict,
	"Misc. Research":     TierStrict,
}

func TierForCategory(category string) Tier {
	if tier, ok := tierByCategory[category]; ok {
		return tier
	}
	return TierStrict
}

type Source struct {
	ID        int64
	Name      string
	Category  string
	IsActive  bool
	CreatedAt time.Time
}

// Document moves through the pipeline via four monotonic timestamps.
// A later stamp implies all earlier ones are set.
type Document struct {
	ID             int64
	SourceID       int64
	URL            string
	Title          string
	SourceCategory string
	OrgHighlight   *bool
	IngestedAt     time.Time
	IndexedAt      *time.Time
	MatchedAt      *time.Time
	EnrichedAt     *time.Time
}

type Anchor struct {
	ID          int64
	Name        string
	Description string
	Author      string
	IsActive    bool
	CreatedAt   time.Time
	Components  []AnchorComponent
}

type AnchorComponent struct {
	ID          int64
	AnchorID    int64
	Type        string
	ComponentID string
}

// Link scores one document against one anchor. AnchorHighlight stays nil
// until the classifier resolves it.
type Link struct {
	ID              int64
	DocumentID      int64
	AnchorID        int64
	Score           float64
	AnchorHighlight *bool
	CreatedAt       time.Time
}

// LinkCandidate is an unresolved link joined to everything the classifier
// needs to pick a threshold.
type LinkCandidate struct {
	LinkID         int64
	DocumentID     int64
	AnchorID       int64
	AnchorName     string
	SourceCategory string
	Score          float64
}

// Highlight is the delivery-facing row: a resolved link joined to document,
// anchor and source identity.
type Highlight struct {
	LinkID          int64
	DocumentID      int64
	DocumentURL     string
	DocumentTitle   string
	AnchorID        int64
	AnchorName      string
	SourceName      string
	SourceCategory  string
	Score           float64
	AnchorHighlight bool
	OrgHighlight    bool
	EnrichedAt      time.Time
}

type PipelineRun struct {
	ID               string
	StartedAt        time.Time
	FinishedAt       *time.Time
	Status           string
	DocumentsMatched int
	LinksCreated     int
	HighlightsFound  int
}

const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailure = "failure"
)
