package mocks

import (
	"context"
	"sync"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
)

// EvidenceStore is a thread-safe in-memory implementation of ports.EvidenceStore.
type EvidenceStore struct {
	mu    sync.RWMutex
	items map[string]domain.Evidence
	gets  int

	// GetEvidenceFn allows overriding GetEvidence behavior.
	GetEvidenceFn func(ctx context.Context, key string) (domain.Evidence, error)

	// PutEvidenceFn allows overriding PutEvidence behavior.
	PutEvidenceFn func(ctx context.Context, key string, evidence domain.Evidence) error
}

// NewEvidenceStore creates a new mock evidence store.
func NewEvidenceStore() *EvidenceStore {
	return &EvidenceStore{items: make(map[string]domain.Evidence)}
}

// PutEvidence stores the payload under key.
func (s *EvidenceStore) PutEvidence(ctx context.Context, key string, evidence domain.Evidence) error {
	if s.PutEvidenceFn != nil {
		return s.PutEvidenceFn(ctx, key, evidence)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = evidence

	return nil
}

// GetEvidence returns the payload stored under key.
func (s *EvidenceStore) GetEvidence(ctx context.Context, key string) (domain.Evidence, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()

	if s.GetEvidenceFn != nil {
		return s.GetEvidenceFn(ctx, key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.items[key]
	if !ok {
		return domain.Evidence{}, coreerrors.ErrEvidenceNotFound
	}

	return ev, nil
}

// Get returns the stored payload for assertions.
func (s *EvidenceStore) Get(key string) (domain.Evidence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.items[key]

	return ev, ok
}

// GetCalls returns how many times GetEvidence was invoked.
func (s *EvidenceStore) GetCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.gets
}
