package discipline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bibleverse-backend/internal/domain"
	"bibleverse-backend/internal/repository/memory"
	apperrors "bibleverse-backend/pkg/errors"
)

// MockTaskSource is a mock implementation of TaskSource
type MockTaskSource struct {
	mock.Mock
}

func (m *MockTaskSource) MandatoryTasks(ctx context.Context, roomID string) ([]*domain.Task, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Task), args.Error(1)
}

func (m *MockTaskSource) Completions(ctx context.Context, roomID, userID string) ([]*domain.TaskCompletion, error) {
	args := m.Called(ctx, roomID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TaskCompletion), args.Error(1)
}

func TestEvaluateDiscipline(t *testing.T) {
	source := new(MockTaskSource)
	tasks := mandatoryTasks(6)
	source.On("MandatoryTasks", mock.Anything, "room-1").Return(tasks, nil)
	source.On("Completions", mock.Anything, "room-1", "u1").Return(completeAllBut(tasks, 3), nil)

	svc := NewService(source, nil)
	eval, err := svc.EvaluateDiscipline(context.Background(), "room-1", "u1")

	require.NoError(t, err)
	assert.Equal(t, 3, eval.Missed)
	assert.Equal(t, domain.DisciplineWarning, eval.Status)
	source.AssertExpectations(t)
}

func TestRecommendAction(t *testing.T) {
	source := new(MockTaskSource)
	tasks := mandatoryTasks(8)
	source.On("MandatoryTasks", mock.Anything, "room-1").Return(tasks, nil)
	// Only day 0 done: 7 trailing missed days
	source.On("Completions", mock.Anything, "room-1", "u1").Return(completeAllBut(tasks, 0)[:1], nil)

	svc := NewService(source, nil)
	rec, err := svc.RecommendAction(context.Background(), "room-1", "u1")

	require.NoError(t, err)
	assert.Equal(t, domain.RecommendRemove, rec.Action)
	assert.Equal(t, 7, rec.Activity.ConsecutiveMissedDays)
}

func TestEvaluateDiscipline_Validation(t *testing.T) {
	svc := NewService(new(MockTaskSource), nil)

	_, err := svc.EvaluateDiscipline(context.Background(), "", "u1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingField))

	_, err = svc.RecommendAction(context.Background(), "room-1", " ")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingField))
}

func TestEvaluateDiscipline_SourceError(t *testing.T) {
	source := new(MockTaskSource)
	source.On("MandatoryTasks", mock.Anything, "room-1").Return(nil, errors.New("firestore unavailable"))

	_, err := NewService(source, nil).EvaluateDiscipline(context.Background(), "room-1", "u1")

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabase))
}

func TestEvaluateDiscipline_ArchivedMandatoryStillCounts(t *testing.T) {
	repo := memory.NewTaskRepository()
	for i, status := range []domain.TaskStatus{
		domain.TaskStatusActive,
		domain.TaskStatusActive,
		domain.TaskStatusArchived,
		domain.TaskStatusActive,
		domain.TaskStatusActive,
	} {
		repo.AddTask(&domain.Task{
			ID:        fmt.Sprintf("task-%d", i),
			RoomID:    "room-1",
			DayIndex:  i,
			Mandatory: true,
			Status:    status,
		})
	}

	eval, err := NewService(repo, nil).EvaluateDiscipline(context.Background(), "room-1", "u1")

	require.NoError(t, err)
	assert.Equal(t, 5, eval.MandatoryTasks)
	assert.Equal(t, 5, eval.Missed)
	assert.Equal(t, domain.DisciplineRemove, eval.Status)
}
