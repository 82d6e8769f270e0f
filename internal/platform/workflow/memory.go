package workflow

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/ports"
)

// MemoryLog is an in-process step log used for inline runs and tests.
// Like the postgres log, the first result saved for a step wins.
type MemoryLog struct {
	mu    sync.RWMutex
	steps map[string]map[string]json.RawMessage
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{steps: make(map[string]map[string]json.RawMessage)}
}

// LoadSteps returns a copy of the stored steps for runID.
func (l *MemoryLog) LoadSteps(_ context.Context, runID string) (map[string]json.RawMessage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(l.steps[runID]))
	for k, v := range l.steps[runID] {
		out[k] = v
	}

	return out, nil
}

// SaveStep stores a step result unless one is already present.
func (l *MemoryLog) SaveStep(_ context.Context, runID, stepName string, result json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	run, ok := l.steps[runID]
	if !ok {
		run = make(map[string]json.RawMessage)
		l.steps[runID] = run
	}

	if _, exists := run[stepName]; !exists {
		run[stepName] = append(json.RawMessage(nil), result...)
	}

	return nil
}

var _ ports.StepLog = (*MemoryLog)(nil)
