package discipline

import (
	"time"

	"bibleverse-backend/internal/domain"
)

// Thresholds of the three-tier table, on missed mandatory tasks
const (
	WarningMissed = 3
	RemoveMissed  = 5
)

// Thresholds of the four-tier table, on consecutive missed days
const (
	EncourageDays = 2
	WarningDays   = 4
	RemoveDays    = 7
)

// Evaluation is the result of the three-tier engine
type Evaluation struct {
	MandatoryTasks int                     `json:"mandatory_tasks"`
	Completed      int                     `json:"completed"`
	Missed         int                     `json:"missed"`
	Status         domain.DisciplineStatus `json:"status"`
}

// RoomActivity summarizes a participant's engagement in a room
type RoomActivity struct {
	MissedMandatoryTasks  int        `json:"missed_mandatory_tasks"`
	ConsecutiveMissedDays int        `json:"consecutive_missed_days"`
	TotalCompletions      int        `json:"total_completions"`
	LastActiveAt          *time.Time `json:"last_active_at,omitempty"`
}

// Recommendation is the result of the four-tier engine
type Recommendation struct {
	Activity RoomActivity                    `json:"activity"`
	Action   domain.DisciplineRecommendation `json:"action"`
}

// completedSet returns the ids of tasks with a completed record
func completedSet(completions []*domain.TaskCompletion) map[string]struct{} {
	done := make(map[string]struct{}, len(completions))
	for _, c := range completions {
		if c != nil && c.Completed {
			done[c.TaskID] = struct{}{}
		}
	}
	return done
}

// Evaluate classifies missed = |mandatory| - |mandatory ∩ completed|.
// Non-mandatory tasks in the input are ignored.
func Evaluate(tasks []*domain.Task, completions []*domain.TaskCompletion) Evaluation {
	done := completedSet(completions)

	var eval Evaluation
	for _, t := range tasks {
		if t == nil || !t.Mandatory {
			continue
		}
		eval.MandatoryTasks++
		if _, ok := done[t.ID]; ok {
			eval.Completed++
		}
	}
	eval.Missed = eval.MandatoryTasks - eval.Completed
	eval.Status = StatusFor(eval.Missed)
	return eval
}

// StatusFor is the three-tier threshold table
func StatusFor(missed int) domain.DisciplineStatus {
	switch {
	case missed >= RemoveMissed:
		return domain.DisciplineRemove
	case missed >= WarningMissed:
		return domain.DisciplineWarning
	default:
		return domain.DisciplineOK
	}
}

// ActivityFrom derives RoomActivity from a room's tasks and a participant's completions.
// Consecutive missed days counts back from the latest mandatory day while each day
// holds at least one missed mandatory task.
func ActivityFrom(tasks []*domain.Task, completions []*domain.TaskCompletion) RoomActivity {
	done := completedSet(completions)

	var activity RoomActivity
	activity.TotalCompletions = len(done)
	for _, c := range completions {
		if c == nil || !c.Completed || c.CompletedAt.IsZero() {
			continue
		}
		if activity.LastActiveAt == nil || c.CompletedAt.After(*activity.LastActiveAt) {
			at := c.CompletedAt
			activity.LastActiveAt = &at
		}
	}

	missedDays := make(map[int]bool)
	lastDay, haveDay := 0, false
	for _, t := range tasks {
		if t == nil || !t.Mandatory {
			continue
		}
		if !haveDay || t.DayIndex > lastDay {
			lastDay, haveDay = t.DayIndex, true
		}
		if _, ok := done[t.ID]; !ok {
			activity.MissedMandatoryTasks++
			missedDays[t.DayIndex] = true
		}
	}

	if haveDay {
		for day := lastDay; missedDays[day]; day-- {
			activity.ConsecutiveMissedDays++
		}
	}
	return activity
}

// Recommend is the four-tier table. With no consecutive missed days it agrees
// with StatusFor, except that encourage corresponds to ok.
func Recommend(activity RoomActivity) Recommendation {
	rec := Recommendation{Activity: activity}
	days, missed := activity.ConsecutiveMissedDays, activity.MissedMandatoryTasks

	switch {
	case days >= RemoveDays || missed >= RemoveMissed:
		rec.Action = domain.RecommendRemove
	case days >= WarningDays || missed >= WarningMissed:
		rec.Action = domain.RecommendWarning
	case days >= EncourageDays || missed >= 1:
		rec.Action = domain.RecommendEncourage
	default:
		rec.Action = domain.RecommendOK
	}
	return rec
}
