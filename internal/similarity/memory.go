package similarity

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
)

// MemoryIndex is an in-process Index using exact cosine similarity.
type MemoryIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vectors: make(map[string][]float32)}
}

// UpsertFeedbackEmbedding stores a copy of the vector.
func (m *MemoryIndex) UpsertFeedbackEmbedding(_ context.Context, feedbackID string, embedding []float32, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.vectors[feedbackID] = append([]float32(nil), embedding...)

	return nil
}

// FindSimilarFeedback returns the nearest vectors at or above minScore.
func (m *MemoryIndex) FindSimilarFeedback(_ context.Context, embedding []float32, limit int, minScore float64) ([]domain.SimilarityMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]domain.SimilarityMatch, 0, len(m.vectors))

	for id, vec := range m.vectors {
		score := cosine(embedding, vec)
		if score < minScore {
			continue
		}

		matches = append(matches, domain.SimilarityMatch{ID: id, Score: domain.Float64Ptr(score)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if *matches[i].Score != *matches[j].Score {
			return *matches[i].Score > *matches[j].Score
		}

		return matches[i].ID < matches[j].ID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// Len returns the number of indexed vectors.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.vectors)
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))

	var dot, na, nb float64

	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}

	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
