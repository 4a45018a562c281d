package domain

import (
	"fmt"
	"time"
)

// TaskType is the kind of spiritual-formation task
type TaskType string

const (
	TaskTypeTellMe  TaskType = "tell_me"
	TaskTypePrayer  TaskType = "prayer"
	TaskTypeRhema   TaskType = "rhema"
	TaskTypeAction  TaskType = "action"
	TaskTypeSilence TaskType = "silence"
	TaskTypeWorship TaskType = "worship"
)

// ParseTaskType validates a task type read from the store
func ParseTaskType(s string) (TaskType, error) {
	switch TaskType(s) {
	case TaskTypeTellMe, TaskTypePrayer, TaskTypeRhema, TaskTypeAction, TaskTypeSilence, TaskTypeWorship:
		return TaskType(s), nil
	}
	return "", fmt.Errorf("invalid task type %q", s)
}

// TaskStatus is active or archived
type TaskStatus string

const (
	TaskStatusActive   TaskStatus = "active"
	TaskStatusArchived TaskStatus = "archived"
)

// Task belongs to a room; mandatory tasks count toward discipline
type Task struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"room_id"`
	Title     string     `json:"title"`
	TaskType  TaskType   `json:"task_type"`
	DayIndex  int        `json:"day_index"`
	Mandatory bool       `json:"mandatory"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// TaskCompletion links a participant to a task
type TaskCompletion struct {
	TaskID      string    `json:"task_id"`
	UserID      string    `json:"user_id"`
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completed_at"`
}

// DisciplineStatus is the three-tier engine result
type DisciplineStatus string

const (
	DisciplineOK      DisciplineStatus = "ok"
	DisciplineWarning DisciplineStatus = "warning"
	DisciplineRemove  DisciplineStatus = "remove"
)

// DisciplineRecommendation is the four-tier variant
type DisciplineRecommendation string

const (
	RecommendOK        DisciplineRecommendation = "ok"
	RecommendEncourage DisciplineRecommendation = "encourage"
	RecommendWarning   DisciplineRecommendation = "warning"
	RecommendRemove    DisciplineRecommendation = "remove"
)
