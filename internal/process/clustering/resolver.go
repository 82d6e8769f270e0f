// Package clustering assigns a feedback item to a cluster: the cluster of its
// closest already-clustered match, or a new one seeded from the feedback id.
//
// Resolution reads existing assignments and then creates without a lock. Two
// runs for mutually similar feedback that overlap in time can each miss the
// other's cluster and create their own. No merging happens afterwards.
package clustering

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
)

// Namespace seeds deterministic cluster ids so a replayed step ensures the same
// cluster instead of creating a second one.
var Namespace = uuid.MustParse("6f1c1e52-3c1a-4f0e-9a57-2b4f1f3f4b11")

const (
	logKeyFeedbackID = "feedback_id"
	logKeyClusterID  = "cluster_id"
	logKeyKind       = "kind"
)

// Assignment says whether a feedback item joined an existing cluster.
type Assignment string

// Assignment values.
const (
	AssignmentJoined  Assignment = "joined"
	AssignmentCreated Assignment = "created"
)

// Store is the persistence the resolver needs.
type Store interface {
	FindClusterIDs(ctx context.Context, feedbackIDs []string) (map[string]string, error)
	EnsureCluster(ctx context.Context, label, existingID, seedID string) (string, error)
}

// Resolver picks cluster ids.
type Resolver struct {
	store  Store
	logger *zerolog.Logger
}

// New creates a resolver.
func New(store Store, logger *zerolog.Logger) *Resolver {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	return &Resolver{store: store, logger: logger}
}

// SeedID is the id of the cluster created for feedbackID when none of its
// matches is clustered.
func SeedID(feedbackID string) string {
	return uuid.NewSHA1(Namespace, []byte(feedbackID)).String()
}

// Resolve returns the cluster for feedbackID. Matches are considered in
// descending score order; the first with a clustered case file wins.
func (r *Resolver) Resolve(ctx context.Context, feedbackID string, caseFile domain.CaseFile, matches []domain.SimilarityMatch) (string, Assignment, error) {
	ordered := SortMatches(matches)

	existing := ""

	if len(ordered) > 0 {
		ids := make([]string, 0, len(ordered))
		for _, m := range ordered {
			ids = append(ids, m.ID)
		}

		clusterIDs, err := r.store.FindClusterIDs(ctx, ids)
		if err != nil {
			return "", "", fmt.Errorf("find cluster ids: %w", err)
		}

		for _, m := range ordered {
			if id := clusterIDs[m.ID]; id != "" {
				existing = id
				break
			}
		}
	}

	clusterID, err := r.store.EnsureCluster(ctx, caseFile.ClusterHint, existing, SeedID(feedbackID))
	if err != nil {
		return "", "", fmt.Errorf("ensure cluster: %w", err)
	}

	kind := AssignmentCreated
	if existing != "" {
		kind = AssignmentJoined
	}

	r.logger.Debug().
		Str(logKeyFeedbackID, feedbackID).
		Str(logKeyClusterID, clusterID).
		Str(logKeyKind, string(kind)).
		Msg("cluster resolved")

	return clusterID, kind, nil
}

// SortMatches returns a copy of matches stable-sorted by descending score.
// Unscored matches keep their relative order after every scored one.
func SortMatches(matches []domain.SimilarityMatch) []domain.SimilarityMatch {
	out := append([]domain.SimilarityMatch(nil), matches...)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Score, out[j].Score

		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})

	return out
}
