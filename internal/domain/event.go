package domain

import "time"

// CallEventType names a change pushed to call subscribers
type CallEventType string

const (
	CallEventJoined         CallEventType = "participant_joined"
	CallEventLeft           CallEventType = "participant_left"
	CallEventHandRaised     CallEventType = "hand_raised"
	CallEventCircleStarted  CallEventType = "circle_started"
	CallEventSpeakerChanged CallEventType = "speaker_changed"
	CallEventEnded          CallEventType = "call_ended"
)

// CallEvent is published after a call transition has been persisted
type CallEvent struct {
	Type      CallEventType `json:"type"`
	CallID    string        `json:"call_id"`
	ActorID   string        `json:"actor_id,omitempty"`
	SpeakerID string        `json:"speaker_id,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
