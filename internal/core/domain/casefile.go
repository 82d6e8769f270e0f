package domain

// Category classifies a piece of feedback.
type Category string

// Category constants.
const (
	CategoryBug       Category = "bug"
	CategoryConfusion Category = "confusion"
	CategoryFeature   Category = "feature"
	CategoryPraise    Category = "praise"
	CategoryOther     Category = "other"
)

// ParseCategory returns the category for s, or false if s is not one of the allowed values.
func ParseCategory(s string) (Category, bool) {
	switch c := Category(s); c {
	case CategoryBug, CategoryConfusion, CategoryFeature, CategoryPraise, CategoryOther:
		return c, true
	default:
		return "", false
	}
}

// Case file bounds.
const (
	MaxSummaryLength   = 400
	MaxRationaleLength = 160
	MaxJurors          = 5
	MaxKeywords        = 8

	MinSentiment = -1.0
	MaxSentiment = 1.0
	MinUrgency   = 1
	MaxUrgency   = 5
	MinPriority  = 1
	MaxPriority  = 5

	MinPriorityScore = 0
	MaxPriorityScore = 100
)

// JurorVote is one simulated reviewer's opinion.
type JurorVote struct {
	Persona   string `json:"persona"`
	Priority  int    `json:"priority"`
	Rationale string `json:"rationale"`
}

// CaseFile is the structured analysis derived from evidence.
type CaseFile struct {
	Summary            string      `json:"summary"`
	Category           Category    `json:"category"`
	Sentiment          float64     `json:"sentiment"`
	Urgency            int         `json:"urgency"`
	ProductArea        string      `json:"product_area"`
	ReproStepsMarkdown string      `json:"repro_steps_md"`
	ClarifyingQuestion string      `json:"clarifying_question"`
	Jurors             []JurorVote `json:"jurors"`
	Keywords           []string    `json:"keywords"`
	ClusterHint        string      `json:"cluster_hint"`
	PriorityScore      int         `json:"priority_score"`
}

// DefaultJurors returns the fixed panel used when the model gives none.
func DefaultJurors() []JurorVote {
	return []JurorVote{
		{Persona: "PM", Priority: 3, Rationale: "Moderate impact"},
		{Persona: "Support", Priority: 3, Rationale: "Common support issue"},
		{Persona: "Eng", Priority: 3, Rationale: "Needs investigation"},
		{Persona: "Design", Priority: 3, Rationale: "Possible UX gap"},
		{Persona: "Security", Priority: 3, Rationale: "No immediate risk"},
	}
}
