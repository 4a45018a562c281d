package governance

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bibleverse-backend/internal/domain"
	apperrors "bibleverse-backend/pkg/errors"
	"bibleverse-backend/pkg/logger"
)

// DefaultLimit caps list queries
const DefaultLimit = 50

// Repository stores governance logs
type Repository interface {
	Create(ctx context.Context, log *domain.GovernanceLog) error
	ListByRef(ctx context.Context, scope domain.GovernanceScope, refID string, limit int) ([]*domain.GovernanceLog, error)
	ListByTargetUser(ctx context.Context, userID string, limit int) ([]*domain.GovernanceLog, error)
}

// Service records moderation actions
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new governance service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// LogActionInput contains the action to record
type LogActionInput struct {
	Scope        string
	RefID        string
	Action       string
	TargetUserID *string
	// ExecutedBy defaults to gemini
	ExecutedBy string
}

// LogAction validates and stores a governance log
func (s *Service) LogAction(ctx context.Context, input *LogActionInput) (*domain.GovernanceLog, error) {
	scope, err := domain.ParseGovernanceScope(input.Scope)
	if err != nil {
		return nil, apperrors.ValidationError("Scope must be room, task or call")
	}
	action, err := domain.ParseGovernanceAction(input.Action)
	if err != nil {
		return nil, apperrors.ValidationError("Action must be warn_user, remove_user, suggest_task or summarize_call")
	}
	if strings.TrimSpace(input.RefID) == "" {
		return nil, apperrors.MissingFieldError("ref_id")
	}
	if (action == domain.GovernanceWarnUser || action == domain.GovernanceRemoveUser) &&
		(input.TargetUserID == nil || strings.TrimSpace(*input.TargetUserID) == "") {
		return nil, apperrors.MissingFieldError("target_user_id")
	}

	executedBy := strings.TrimSpace(input.ExecutedBy)
	if executedBy == "" {
		executedBy = domain.ExecutedByGemini
	}

	log := &domain.GovernanceLog{
		ID:           uuid.New(),
		Scope:        scope,
		RefID:        input.RefID,
		Action:       action,
		ExecutedBy:   executedBy,
		TargetUserID: input.TargetUserID,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.repo.Create(ctx, log); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	logger.Info("Governance action logged",
		zap.String("log_id", log.ID.String()),
		zap.String("scope", string(scope)),
		zap.String("ref_id", log.RefID),
		zap.String("action", string(action)),
		zap.String("executed_by", executedBy),
	)

	return log, nil
}

// GetLogsByRef returns logs about one room, task or call, newest first
func (s *Service) GetLogsByRef(ctx context.Context, scope, refID string) ([]*domain.GovernanceLog, error) {
	parsed, err := domain.ParseGovernanceScope(scope)
	if err != nil {
		return nil, apperrors.ValidationError("Scope must be room, task or call")
	}
	if strings.TrimSpace(refID) == "" {
		return nil, apperrors.MissingFieldError("ref_id")
	}

	logs, err := s.repo.ListByRef(ctx, parsed, refID, DefaultLimit)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return logs, nil
}

// GetLogsByTargetUser returns logs targeting userID, newest first
func (s *Service) GetLogsByTargetUser(ctx context.Context, userID string) ([]*domain.GovernanceLog, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.MissingFieldError("user_id")
	}

	logs, err := s.repo.ListByTargetUser(ctx, userID, DefaultLimit)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return logs, nil
}
