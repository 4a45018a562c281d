package memory

import (
	"context"
	"sync"

	"bibleverse-backend/internal/domain"
)

// TranscriptRepository keeps call transcripts in append order
type TranscriptRepository struct {
	mu      sync.RWMutex
	entries map[string][]*domain.TranscriptEntry
}

// NewTranscriptRepository creates an empty TranscriptRepository
func NewTranscriptRepository() *TranscriptRepository {
	return &TranscriptRepository{entries: make(map[string][]*domain.TranscriptEntry)}
}

// Append stores an entry at the end of its call's transcript
func (r *TranscriptRepository) Append(ctx context.Context, entry *domain.TranscriptEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := *entry
	e.OutgoingSpeakerID = copyPtr(entry.OutgoingSpeakerID)
	e.IncomingSpeakerID = copyPtr(entry.IncomingSpeakerID)
	r.entries[entry.CallID] = append(r.entries[entry.CallID], &e)
	return nil
}

// ListByCall returns the first limit entries of a call, oldest first
func (r *TranscriptRepository) ListByCall(ctx context.Context, callID string, limit int) ([]*domain.TranscriptEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.entries[callID]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]*domain.TranscriptEntry, 0, len(entries))
	for _, e := range entries {
		entry := *e
		out = append(out, &entry)
	}
	return out, nil
}
