package memory

import (
	"context"
	"sort"
	"sync"

	"bibleverse-backend/internal/domain"
)

// GovernanceRepository keeps moderation logs in process
type GovernanceRepository struct {
	mu   sync.RWMutex
	logs []*domain.GovernanceLog
}

// NewGovernanceRepository creates an empty GovernanceRepository
func NewGovernanceRepository() *GovernanceRepository {
	return &GovernanceRepository{}
}

// Create stores a log
func (r *GovernanceRepository) Create(ctx context.Context, log *domain.GovernanceLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := *log
	l.TargetUserID = copyPtr(log.TargetUserID)
	r.logs = append(r.logs, &l)
	return nil
}

// ListByRef returns the newest logs about one room, task or call
func (r *GovernanceRepository) ListByRef(ctx context.Context, scope domain.GovernanceScope, refID string, limit int) ([]*domain.GovernanceLog, error) {
	return r.newest(func(l *domain.GovernanceLog) bool {
		return l.Scope == scope && l.RefID == refID
	}, limit), nil
}

// ListByTargetUser returns the newest logs targeting userID
func (r *GovernanceRepository) ListByTargetUser(ctx context.Context, userID string, limit int) ([]*domain.GovernanceLog, error) {
	return r.newest(func(l *domain.GovernanceLog) bool {
		return l.TargetUserID != nil && *l.TargetUserID == userID
	}, limit), nil
}

func (r *GovernanceRepository) newest(match func(*domain.GovernanceLog) bool, limit int) []*domain.GovernanceLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.GovernanceLog, 0)
	for i := len(r.logs) - 1; i >= 0; i-- {
		if match(r.logs[i]) {
			l := *r.logs[i]
			out = append(out, &l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
