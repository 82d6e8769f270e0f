package mocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/ports"
)

var (
	_ ports.Gateway       = (*Gateway)(nil)
	_ ports.EvidenceStore = (*EvidenceStore)(nil)
	_ ports.RunQueue      = (*RunQueue)(nil)
)

func TestGateway_EnsureCluster(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway()

	id, err := gw.EnsureCluster(ctx, "Login", "", "seed-1")
	require.NoError(t, err)
	assert.Equal(t, "seed-1", id)

	again, err := gw.EnsureCluster(ctx, "Login", "", "seed-1")
	require.NoError(t, err)
	assert.Equal(t, "seed-1", again)
	assert.Len(t, gw.Clusters(), 1)

	existing, err := gw.EnsureCluster(ctx, "ignored", "c-9", "seed-2")
	require.NoError(t, err)
	assert.Equal(t, "c-9", existing)
	assert.Len(t, gw.Clusters(), 1)
}

func TestGateway_UpsertClusterMemberRequiresCluster(t *testing.T) {
	gw := NewGateway()

	err := gw.UpsertClusterMember(context.Background(), "missing", "fb-1", nil)
	assert.ErrorIs(t, err, ErrClusterNotFound)
}

func TestGateway_FindClusterIDs(t *testing.T) {
	gw := NewGateway()
	gw.SeedCaseFile("fb-1", "c-1", domain.CaseFile{ClusterHint: "Billing"})
	gw.SeedCaseFile("fb-2", "", domain.CaseFile{})

	got, err := gw.FindClusterIDs(context.Background(), []string{"fb-1", "fb-2", "fb-3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"fb-1": "c-1"}, got)
}

func TestGateway_StatusHistory(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway()

	require.NoError(t, gw.InsertFeedback(ctx, &domain.Feedback{ID: "fb-1", Status: domain.StatusQueued}))
	require.NoError(t, gw.UpdateFeedbackStatus(ctx, "fb-1", domain.StatusProcessing, "", ""))
	require.NoError(t, gw.UpdateFeedbackStatus(ctx, "fb-1", domain.StatusFailed, "workflow_error", "boom"))

	assert.Equal(t, []domain.FeedbackStatus{domain.StatusQueued, domain.StatusProcessing, domain.StatusFailed}, gw.StatusHistory("fb-1"))

	fb, err := gw.GetFeedback(ctx, "fb-1")
	require.NoError(t, err)
	assert.Equal(t, "boom", fb.ErrorMessage)

	_, err = gw.GetFeedback(ctx, "nope")
	assert.ErrorIs(t, err, coreerrors.ErrFeedbackNotFound)
}

func TestEvidenceStore_NotFound(t *testing.T) {
	s := NewEvidenceStore()

	_, err := s.GetEvidence(context.Background(), "evidence/x.json")
	require.ErrorIs(t, err, coreerrors.ErrEvidenceNotFound)
	assert.Equal(t, 1, s.GetCalls())
}
