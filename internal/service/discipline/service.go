package discipline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"bibleverse-backend/internal/domain"
	apperrors "bibleverse-backend/pkg/errors"
	"bibleverse-backend/pkg/logger"
	"bibleverse-backend/pkg/metrics"
)

// TaskSource reads room tasks and a participant's completion records
type TaskSource interface {
	MandatoryTasks(ctx context.Context, roomID string) ([]*domain.Task, error)
	Completions(ctx context.Context, roomID, userID string) ([]*domain.TaskCompletion, error)
}

// Service evaluates discipline. It only reads.
type Service struct {
	tasks   TaskSource
	metrics *metrics.Metrics
}

// NewService creates a new discipline service
func NewService(tasks TaskSource, m *metrics.Metrics) *Service {
	return &Service{tasks: tasks, metrics: m}
}

// EvaluateDiscipline applies the three-tier table to userID in roomID
func (s *Service) EvaluateDiscipline(ctx context.Context, roomID, userID string) (*Evaluation, error) {
	tasks, completions, err := s.load(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	eval := Evaluate(tasks, completions)
	s.metrics.RecordDiscipline("threshold", string(eval.Status))
	logger.Debug("Discipline evaluated",
		zap.String("room_id", roomID),
		logger.UserID(userID),
		zap.Int("missed", eval.Missed),
		zap.String("status", string(eval.Status)),
	)
	return &eval, nil
}

// RecommendAction applies the four-tier table to userID in roomID
func (s *Service) RecommendAction(ctx context.Context, roomID, userID string) (*Recommendation, error) {
	tasks, completions, err := s.load(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	rec := Recommend(ActivityFrom(tasks, completions))
	s.metrics.RecordDiscipline("recommend", string(rec.Action))
	return &rec, nil
}

func (s *Service) load(ctx context.Context, roomID, userID string) ([]*domain.Task, []*domain.TaskCompletion, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, nil, apperrors.MissingFieldError("room_id")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, nil, apperrors.MissingFieldError("user_id")
	}

	tasks, err := s.tasks.MandatoryTasks(ctx, roomID)
	if err != nil {
		return nil, nil, apperrors.DatabaseError(err)
	}
	completions, err := s.tasks.Completions(ctx, roomID, userID)
	if err != nil {
		return nil, nil, apperrors.DatabaseError(err)
	}
	return tasks, completions, nil
}
