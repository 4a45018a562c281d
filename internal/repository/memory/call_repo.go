// Package memory holds in-process stores used in development and tests.
// Records are copied in and out so callers never share state with the store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"bibleverse-backend/internal/domain"
)

// CallRepository stores calls in a map
type CallRepository struct {
	mu    sync.RWMutex
	calls map[string]*domain.Call
}

// NewCallRepository creates an empty CallRepository
func NewCallRepository() *CallRepository {
	return &CallRepository{calls: make(map[string]*domain.Call)}
}

// Create stores a new call
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.calls[call.ID]; exists {
		return fmt.Errorf("call %s already exists", call.ID)
	}
	r.calls[call.ID] = copyCall(call)
	return nil
}

// GetByID returns the call or nil when absent
func (r *CallRepository) GetByID(ctx context.Context, callID string) (*domain.Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	call, ok := r.calls[callID]
	if !ok {
		return nil, nil
	}
	return copyCall(call), nil
}

// Update applies a partial update and returns the result, or nil when absent
func (r *CallRepository) Update(ctx context.Context, callID string, update domain.CallUpdate) (*domain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call, ok := r.calls[callID]
	if !ok {
		return nil, nil
	}
	update.Apply(call)
	return copyCall(call), nil
}

func copyCall(c *domain.Call) *domain.Call {
	out := *c
	out.CurrentSpeakerID = copyPtr(c.CurrentSpeakerID)
	out.SpeakerStartTime = copyPtr(c.SpeakerStartTime)
	out.EndedAt = copyPtr(c.EndedAt)
	out.ModeratorMessage = copyPtr(c.ModeratorMessage)
	return &out
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
