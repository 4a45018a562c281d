package memory

import (
	"context"
	"fmt"
	"sync"

	"bibleverse-backend/internal/domain"
)

// ParticipantRepository stores participants per call and enumerates them in insertion order
type ParticipantRepository struct {
	mu    sync.RWMutex
	calls map[string]*participantSet
}

type participantSet struct {
	order  []string
	byUser map[string]*domain.CallParticipant
}

// NewParticipantRepository creates an empty ParticipantRepository
func NewParticipantRepository() *ParticipantRepository {
	return &ParticipantRepository{calls: make(map[string]*participantSet)}
}

// Add inserts or replaces a participant
func (r *ParticipantRepository) Add(ctx context.Context, callID string, participant *domain.CallParticipant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.calls[callID]
	if !ok {
		set = &participantSet{byUser: make(map[string]*domain.CallParticipant)}
		r.calls[callID] = set
	}
	if _, exists := set.byUser[participant.UserID]; !exists {
		set.order = append(set.order, participant.UserID)
	}
	set.byUser[participant.UserID] = copyParticipant(participant)
	return nil
}

// Remove deletes a participant; removing a non-member is a no-op
func (r *ParticipantRepository) Remove(ctx context.Context, callID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.calls[callID]
	if !ok {
		return nil
	}
	if _, exists := set.byUser[userID]; !exists {
		return nil
	}
	delete(set.byUser, userID)
	for i, id := range set.order {
		if id == userID {
			set.order = append(set.order[:i], set.order[i+1:]...)
			break
		}
	}
	return nil
}

// Update applies a partial update to an existing participant
func (r *ParticipantRepository) Update(ctx context.Context, callID, userID string, update domain.ParticipantUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.calls[callID]
	if !ok {
		return fmt.Errorf("participant %s not found in call %s", userID, callID)
	}
	p, ok := set.byUser[userID]
	if !ok {
		return fmt.Errorf("participant %s not found in call %s", userID, callID)
	}
	update.Apply(p)
	return nil
}

// List returns the participants of a call in insertion order
func (r *ParticipantRepository) List(ctx context.Context, callID string) ([]*domain.CallParticipant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.calls[callID]
	if !ok {
		return []*domain.CallParticipant{}, nil
	}
	out := make([]*domain.CallParticipant, 0, len(set.order))
	for _, id := range set.order {
		out = append(out, copyParticipant(set.byUser[id]))
	}
	return out, nil
}

// Get returns a participant or nil for a non-member
func (r *ParticipantRepository) Get(ctx context.Context, callID, userID string) (*domain.CallParticipant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.calls[callID]
	if !ok {
		return nil, nil
	}
	p, ok := set.byUser[userID]
	if !ok {
		return nil, nil
	}
	return copyParticipant(p), nil
}

func copyParticipant(p *domain.CallParticipant) *domain.CallParticipant {
	out := *p
	out.SpeakingOrder = copyPtr(p.SpeakingOrder)
	out.SpeakingTimeSeconds = copyPtr(p.SpeakingTimeSeconds)
	return &out
}
