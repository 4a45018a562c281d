package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GovernanceScope is what a moderation action refers to
type GovernanceScope string

const (
	GovernanceScopeRoom GovernanceScope = "room"
	GovernanceScopeTask GovernanceScope = "task"
	GovernanceScopeCall GovernanceScope = "call"
)

// GovernanceAction is a moderation action
type GovernanceAction string

const (
	GovernanceWarnUser      GovernanceAction = "warn_user"
	GovernanceRemoveUser    GovernanceAction = "remove_user"
	GovernanceSuggestTask   GovernanceAction = "suggest_task"
	GovernanceSummarizeCall GovernanceAction = "summarize_call"
)

// ExecutedByGemini is the executor recorded for automated actions
const ExecutedByGemini = "gemini"

func ParseGovernanceScope(s string) (GovernanceScope, error) {
	switch GovernanceScope(s) {
	case GovernanceScopeRoom, GovernanceScopeTask, GovernanceScopeCall:
		return GovernanceScope(s), nil
	}
	return "", fmt.Errorf("invalid governance scope %q", s)
}

func ParseGovernanceAction(s string) (GovernanceAction, error) {
	switch GovernanceAction(s) {
	case GovernanceWarnUser, GovernanceRemoveUser, GovernanceSuggestTask, GovernanceSummarizeCall:
		return GovernanceAction(s), nil
	}
	return "", fmt.Errorf("invalid governance action %q", s)
}

// GovernanceLog records a moderation action
type GovernanceLog struct {
	ID           uuid.UUID        `json:"id"`
	Scope        GovernanceScope  `json:"scope"`
	RefID        string           `json:"ref_id"`
	Action       GovernanceAction `json:"action"`
	ExecutedBy   string           `json:"executed_by"`
	TargetUserID *string          `json:"target_user_id,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// TranscriptEntry is one circle-talking transition appended to a call's transcript
type TranscriptEntry struct {
	CallID            string         `json:"call_id"`
	EntryID           uuid.UUID      `json:"entry_id"`
	Kind              TransitionKind `json:"kind"`
	OutgoingSpeakerID *string        `json:"outgoing_speaker_id,omitempty"`
	IncomingSpeakerID *string        `json:"incoming_speaker_id,omitempty"`
	Message           string         `json:"message"`
	Fallback          bool           `json:"fallback"`
	CreatedAt         time.Time      `json:"created_at"`
}
