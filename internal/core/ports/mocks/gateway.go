package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
)

// StoredCaseFile is a case file row as the gateway holds it.
type StoredCaseFile struct {
	CaseFile  domain.CaseFile
	ClusterID string
}

// Gateway is a thread-safe in-memory implementation of ports.Gateway.
type Gateway struct {
	mu        sync.RWMutex
	feedback  map[string]domain.Feedback
	caseFiles map[string]StoredCaseFile
	clusters  map[string]domain.Cluster
	members   map[string]domain.ClusterMember
	edges     map[[2]string]domain.SimilarityEdge
	statusLog map[string][]domain.FeedbackStatus

	// UpdateFeedbackStatusFn allows overriding UpdateFeedbackStatus behavior.
	UpdateFeedbackStatusFn func(ctx context.Context, feedbackID string, status domain.FeedbackStatus, errorCode, errorMessage string) error

	// UpsertCaseFileFn allows overriding UpsertCaseFile behavior.
	UpsertCaseFileFn func(ctx context.Context, feedbackID string, caseFile domain.CaseFile, clusterID string) error

	// UpsertSimilarityEdgeFn allows overriding UpsertSimilarityEdge behavior.
	UpsertSimilarityEdgeFn func(ctx context.Context, feedbackID, similarID string, score *float64) error
}

// NewGateway creates a new mock gateway.
func NewGateway() *Gateway {
	return &Gateway{
		feedback:  make(map[string]domain.Feedback),
		caseFiles: make(map[string]StoredCaseFile),
		clusters:  make(map[string]domain.Cluster),
		members:   make(map[string]domain.ClusterMember),
		edges:     make(map[[2]string]domain.SimilarityEdge),
		statusLog: make(map[string][]domain.FeedbackStatus),
	}
}

// InsertFeedback stores a new feedback row.
func (g *Gateway) InsertFeedback(_ context.Context, fb *domain.Feedback) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.feedback[fb.ID]; ok {
		return nil
	}

	g.feedback[fb.ID] = *fb
	g.statusLog[fb.ID] = append(g.statusLog[fb.ID], fb.Status)

	return nil
}

// GetFeedback returns a copy of the feedback row.
func (g *Gateway) GetFeedback(_ context.Context, feedbackID string) (*domain.Feedback, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	fb, ok := g.feedback[feedbackID]
	if !ok {
		return nil, coreerrors.ErrFeedbackNotFound
	}

	return &fb, nil
}

// UpdateFeedbackStatus sets status and error fields.
func (g *Gateway) UpdateFeedbackStatus(ctx context.Context, feedbackID string, status domain.FeedbackStatus, errorCode, errorMessage string) error {
	if g.UpdateFeedbackStatusFn != nil {
		if err := g.UpdateFeedbackStatusFn(ctx, feedbackID, status, errorCode, errorMessage); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	fb, ok := g.feedback[feedbackID]
	if !ok {
		return nil
	}

	fb.Status = status
	fb.ErrorCode = errorCode
	fb.ErrorMessage = errorMessage
	g.feedback[feedbackID] = fb
	g.statusLog[feedbackID] = append(g.statusLog[feedbackID], status)

	return nil
}

// UpsertCaseFile replaces the case file for a feedback item.
func (g *Gateway) UpsertCaseFile(ctx context.Context, feedbackID string, caseFile domain.CaseFile, clusterID string) error {
	if g.UpsertCaseFileFn != nil {
		if err := g.UpsertCaseFileFn(ctx, feedbackID, caseFile, clusterID); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.caseFiles[feedbackID] = StoredCaseFile{CaseFile: caseFile, ClusterID: clusterID}

	return nil
}

// FindClusterIDs returns cluster ids for feedback items whose case file has one.
func (g *Gateway) FindClusterIDs(_ context.Context, feedbackIDs []string) (map[string]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]string)

	for _, id := range feedbackIDs {
		if cf, ok := g.caseFiles[id]; ok && cf.ClusterID != "" {
			out[id] = cf.ClusterID
		}
	}

	return out, nil
}

// EnsureCluster returns existingID or creates the seeded cluster.
func (g *Gateway) EnsureCluster(_ context.Context, label, existingID, seedID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()

	if existingID != "" {
		if c, ok := g.clusters[existingID]; ok {
			c.UpdatedAt = now
			g.clusters[existingID] = c
		}

		return existingID, nil
	}

	c, ok := g.clusters[seedID]
	if !ok {
		c = domain.Cluster{ID: seedID, CreatedAt: now}
	}

	c.Label = label
	c.UpdatedAt = now
	g.clusters[seedID] = c

	return seedID, nil
}

// UpsertClusterMember replaces a feedback item's cluster membership.
func (g *Gateway) UpsertClusterMember(_ context.Context, clusterID, feedbackID string, similarity *float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.clusters[clusterID]; !ok {
		return fmt.Errorf("%w: %s", ErrClusterNotFound, clusterID)
	}

	g.members[feedbackID] = domain.ClusterMember{ClusterID: clusterID, FeedbackID: feedbackID, Similarity: similarity}

	return nil
}

// UpsertSimilarityEdge replaces the edge between two feedback items.
func (g *Gateway) UpsertSimilarityEdge(ctx context.Context, feedbackID, similarID string, score *float64) error {
	if g.UpsertSimilarityEdgeFn != nil {
		if err := g.UpsertSimilarityEdgeFn(ctx, feedbackID, similarID, score); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[[2]string{feedbackID, similarID}] = domain.SimilarityEdge{
		FeedbackID:        feedbackID,
		SimilarFeedbackID: similarID,
		Score:             score,
	}

	return nil
}

// SeedFeedback stores a feedback row directly.
func (g *Gateway) SeedFeedback(fb *domain.Feedback) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.feedback[fb.ID] = *fb
}

// SeedCaseFile stores a case file row directly, creating its cluster if needed.
func (g *Gateway) SeedCaseFile(feedbackID, clusterID string, caseFile domain.CaseFile) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.caseFiles[feedbackID] = StoredCaseFile{CaseFile: caseFile, ClusterID: clusterID}

	if clusterID != "" {
		if _, ok := g.clusters[clusterID]; !ok {
			now := time.Now().UTC()
			g.clusters[clusterID] = domain.Cluster{ID: clusterID, Label: caseFile.ClusterHint, CreatedAt: now, UpdatedAt: now}
		}
	}
}

// CaseFile returns the stored case file for a feedback item.
func (g *Gateway) CaseFile(feedbackID string) (StoredCaseFile, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cf, ok := g.caseFiles[feedbackID]

	return cf, ok
}

// Cluster returns a stored cluster.
func (g *Gateway) Cluster(clusterID string) (domain.Cluster, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	c, ok := g.clusters[clusterID]

	return c, ok
}

// Clusters returns all clusters sorted by id.
func (g *Gateway) Clusters() []domain.Cluster {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.Cluster, 0, len(g.clusters))
	for _, c := range g.clusters {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Members returns all cluster members sorted by feedback id.
func (g *Gateway) Members() []domain.ClusterMember {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.ClusterMember, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FeedbackID < out[j].FeedbackID })

	return out
}

// Edges returns all similarity edges sorted by (feedback, similar) id.
func (g *Gateway) Edges() []domain.SimilarityEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.SimilarityEdge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FeedbackID != out[j].FeedbackID {
			return out[i].FeedbackID < out[j].FeedbackID
		}

		return out[i].SimilarFeedbackID < out[j].SimilarFeedbackID
	})

	return out
}

// StatusHistory returns every status written for a feedback item, in order.
func (g *Gateway) StatusHistory(feedbackID string) []domain.FeedbackStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return append([]domain.FeedbackStatus(nil), g.statusLog[feedbackID]...)
}

// Snapshot is a timestamp-free view of the stored rows, comparable with ==-style asserts.
type Snapshot struct {
	Feedback  map[string]domain.Feedback
	CaseFiles map[string]StoredCaseFile
	Clusters  map[string]string
	Members   []domain.ClusterMember
	Edges     []domain.SimilarityEdge
}

// Snapshot captures the current state without cluster timestamps.
func (g *Gateway) Snapshot() Snapshot {
	members := g.Members()
	edges := g.Edges()

	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Snapshot{
		Feedback:  make(map[string]domain.Feedback, len(g.feedback)),
		CaseFiles: make(map[string]StoredCaseFile, len(g.caseFiles)),
		Clusters:  make(map[string]string, len(g.clusters)),
		Members:   members,
		Edges:     edges,
	}

	for k, v := range g.feedback {
		s.Feedback[k] = v
	}

	for k, v := range g.caseFiles {
		s.CaseFiles[k] = v
	}

	for k, v := range g.clusters {
		s.Clusters[k] = v.Label
	}

	return s
}
