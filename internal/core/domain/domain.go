package domain

import "time"

// FeedbackStatus is the lifecycle state of a feedback item.
type FeedbackStatus string

// Feedback status constants.
const (
	StatusQueued     FeedbackStatus = "queued"
	StatusProcessing FeedbackStatus = "processing"
	StatusReady      FeedbackStatus = "ready"
	StatusFailed     FeedbackStatus = "failed"
)

// IsTerminal reports whether no further transitions happen in the current run.
func (s FeedbackStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Error codes recorded on failed feedback.
const (
	ErrorCodeEvidenceMissing     = "evidence_missing"
	ErrorCodeWorkflowError       = "workflow_error"
	ErrorCodeWorkflowStartFailed = "workflow_start_failed"
)

// Feedback is one ingested submission and its processing state.
type Feedback struct {
	ID           string
	Source       string
	Title        string
	Snippet      string
	EvidenceRef  string
	Status       FeedbackStatus
	ErrorCode    string
	ErrorMessage string
	CreatedAt    time.Time
}

// Evidence is the normalized raw payload behind a feedback item.
type Evidence struct {
	Source    string         `json:"source"`
	SourceURL string         `json:"source_url,omitempty"`
	Timestamp string         `json:"timestamp"`
	Author    string         `json:"author,omitempty"`
	Title     string         `json:"title,omitempty"`
	Text      string         `json:"text"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// SimilarityMatch is one hit from the similarity search provider.
// Score is nil when the provider did not report one.
type SimilarityMatch struct {
	ID    string   `json:"id"`
	Score *float64 `json:"score,omitempty"`
}

// TopScore returns the score of the first match, if any.
func TopScore(matches []SimilarityMatch) *float64 {
	if len(matches) == 0 {
		return nil
	}

	return matches[0].Score
}

// SimilarityEdge records that one feedback item resembles another.
type SimilarityEdge struct {
	FeedbackID        string
	SimilarFeedbackID string
	Score             *float64
}

// Cluster groups related feedback items.
type Cluster struct {
	ID        string
	Label     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClusterMember is a feedback item's cluster assignment.
type ClusterMember struct {
	ClusterID  string
	FeedbackID string
	Similarity *float64
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
