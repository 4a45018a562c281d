package memory

import (
	"context"
	"sync"

	"bibleverse-backend/internal/domain"
)

// TaskRepository stores room tasks and completion records
type TaskRepository struct {
	mu          sync.RWMutex
	tasks       map[string][]*domain.Task
	completions map[string][]*domain.TaskCompletion // key: roomID/userID
}

// NewTaskRepository creates an empty TaskRepository
func NewTaskRepository() *TaskRepository {
	return &TaskRepository{
		tasks:       make(map[string][]*domain.Task),
		completions: make(map[string][]*domain.TaskCompletion),
	}
}

// AddTask stores a task for its room
func (r *TaskRepository) AddTask(task *domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := *task
	r.tasks[task.RoomID] = append(r.tasks[task.RoomID], &t)
}

// AddCompletion stores a completion record of userID in roomID
func (r *TaskRepository) AddCompletion(roomID string, completion *domain.TaskCompletion) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *completion
	key := roomID + "/" + completion.UserID
	r.completions[key] = append(r.completions[key], &c)
}

// MandatoryTasks returns every mandatory task of a room, archived ones included
func (r *TaskRepository) MandatoryTasks(ctx context.Context, roomID string) ([]*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Task, 0)
	for _, t := range r.tasks[roomID] {
		if t.Mandatory {
			task := *t
			out = append(out, &task)
		}
	}
	return out, nil
}

// Completions returns every completion record of userID in roomID
func (r *TaskRepository) Completions(ctx context.Context, roomID, userID string) ([]*domain.TaskCompletion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := r.completions[roomID+"/"+userID]
	out := make([]*domain.TaskCompletion, 0, len(records))
	for _, c := range records {
		completion := *c
		out = append(out, &completion)
	}
	return out, nil
}
