// Package ports provides domain-centric interfaces for external dependencies.
// These interfaces follow the ports and adapters (hexagonal) architecture pattern,
// allowing business logic to remain independent of infrastructure concerns.
package ports

import (
	"context"
	"encoding/json"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
)

// EvidenceStore holds normalized evidence payloads keyed by an opaque reference.
// Get returns errors.ErrEvidenceNotFound when the key is unknown.
type EvidenceStore interface {
	PutEvidence(ctx context.Context, key string, evidence domain.Evidence) error
	GetEvidence(ctx context.Context, key string) (domain.Evidence, error)
}

// SimilaritySearch finds previously indexed feedback resembling a text.
type SimilaritySearch interface {
	Query(ctx context.Context, text string, limit int) ([]domain.SimilarityMatch, error)
}

// SimilarityIndexer makes a feedback item findable by later searches.
type SimilarityIndexer interface {
	Index(ctx context.Context, feedbackID, text string) error
}

// FeedbackRepository handles the feedback rows and their status transitions.
type FeedbackRepository interface {
	InsertFeedback(ctx context.Context, fb *domain.Feedback) error
	GetFeedback(ctx context.Context, feedbackID string) (*domain.Feedback, error)
	UpdateFeedbackStatus(ctx context.Context, feedbackID string, status domain.FeedbackStatus, errorCode, errorMessage string) error
}

// CaseFileRepository stores one case file per feedback item.
type CaseFileRepository interface {
	UpsertCaseFile(ctx context.Context, feedbackID string, caseFile domain.CaseFile, clusterID string) error
	// FindClusterIDs returns the non-null cluster ids of the given feedback items' case files.
	FindClusterIDs(ctx context.Context, feedbackIDs []string) (map[string]string, error)
}

// ClusterRepository handles clusters, memberships and similarity edges.
type ClusterRepository interface {
	// EnsureCluster returns existingID when set, otherwise creates (or touches) the
	// cluster identified by seedID with the given label and returns seedID.
	EnsureCluster(ctx context.Context, label, existingID, seedID string) (string, error)
	UpsertClusterMember(ctx context.Context, clusterID, feedbackID string, similarity *float64) error
	UpsertSimilarityEdge(ctx context.Context, feedbackID, similarID string, score *float64) error
}

// Gateway is the full persistence surface the analysis pipeline needs.
// Every write is an idempotent upsert and safe to re-issue.
type Gateway interface {
	FeedbackRepository
	CaseFileRepository
	ClusterRepository
}

// StepLog persists completed workflow steps so a replayed run skips them.
type StepLog interface {
	LoadSteps(ctx context.Context, runID string) (map[string]json.RawMessage, error)
	SaveStep(ctx context.Context, runID, stepName string, result json.RawMessage) error
}

// RunQueue is the durable substrate pipeline runs are scheduled on.
type RunQueue interface {
	EnqueueRun(ctx context.Context, feedbackID string) (string, error)
}
