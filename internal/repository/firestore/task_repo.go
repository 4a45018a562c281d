package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"bibleverse-backend/internal/domain"
)

const (
	roomsCollection        = "rooms"
	tasksCollection        = "tasks"
	taskProgressCollection = "taskProgress"
)

type taskDoc struct {
	Title     string    `firestore:"title"`
	TaskType  string    `firestore:"taskType"`
	DayIndex  int       `firestore:"dayIndex"`
	Mandatory bool      `firestore:"mandatory"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func (d taskDoc) toDomain(id, roomID string) *domain.Task {
	status := domain.TaskStatus(d.Status)
	if status == "" {
		status = domain.TaskStatusActive
	}
	return &domain.Task{
		ID:        id,
		RoomID:    roomID,
		Title:     d.Title,
		TaskType:  domain.TaskType(d.TaskType),
		DayIndex:  d.DayIndex,
		Mandatory: d.Mandatory,
		Status:    status,
		CreatedAt: d.CreatedAt,
	}
}

type progressDoc struct {
	UserID      string    `firestore:"userId"`
	TaskID      string    `firestore:"taskId"`
	Completed   bool      `firestore:"completed"`
	CompletedAt time.Time `firestore:"completedAt"`
}

// TaskRepository reads room tasks and task progress for the discipline engine
type TaskRepository struct {
	client *firestore.Client
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(client *firestore.Client) *TaskRepository {
	return &TaskRepository{client: client}
}

func (r *TaskRepository) room(roomID string) *firestore.DocumentRef {
	return r.client.Collection(roomsCollection).Doc(roomID)
}

// MandatoryTasks returns every mandatory task of a room, archived ones included.
// Order is unspecified; the discipline engine groups tasks by day itself.
func (r *TaskRepository) MandatoryTasks(ctx context.Context, roomID string) ([]*domain.Task, error) {
	iter := r.room(roomID).Collection(tasksCollection).
		Where("mandatory", "==", true).
		Documents(ctx)
	defer iter.Stop()

	tasks := make([]*domain.Task, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}

		var doc taskDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode task: %w", err)
		}
		tasks = append(tasks, doc.toDomain(snap.Ref.ID, roomID))
	}

	return tasks, nil
}

// Completions returns every progress record of userID in roomID
func (r *TaskRepository) Completions(ctx context.Context, roomID, userID string) ([]*domain.TaskCompletion, error) {
	iter := r.room(roomID).Collection(taskProgressCollection).
		Where("userId", "==", userID).
		Documents(ctx)
	defer iter.Stop()

	completions := make([]*domain.TaskCompletion, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list task progress: %w", err)
		}

		var doc progressDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode task progress: %w", err)
		}
		completions = append(completions, &domain.TaskCompletion{
			TaskID:      doc.TaskID,
			UserID:      doc.UserID,
			Completed:   doc.Completed,
			CompletedAt: doc.CompletedAt,
		})
	}

	return completions, nil
}
