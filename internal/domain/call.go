package domain

import (
	"fmt"
	"time"
)

// CallScope is what a call belongs to
type CallScope string

const (
	CallScopeRoom  CallScope = "room"
	CallScopeEvent CallScope = "event"
)

// CallMode is the media mode of a call
type CallMode string

const (
	CallModeAudio CallMode = "audio"
	CallModeVideo CallMode = "video"
)

// CallStatus is the lifecycle status of a call; ended is terminal
type CallStatus string

const (
	CallStatusActive CallStatus = "active"
	CallStatusEnded  CallStatus = "ended"
)

// ParseCallScope validates a scope coming from outside the core
func ParseCallScope(s string) (CallScope, error) {
	switch CallScope(s) {
	case CallScopeRoom, CallScopeEvent:
		return CallScope(s), nil
	}
	return "", fmt.Errorf("invalid call scope %q", s)
}

// ParseCallMode validates a mode coming from outside the core
func ParseCallMode(s string) (CallMode, error) {
	switch CallMode(s) {
	case CallModeAudio, CallModeVideo:
		return CallMode(s), nil
	}
	return "", fmt.Errorf("invalid call mode %q", s)
}

// Call represents a room or event call.
// CurrentSpeakerID and SpeakerStartTime are both set or both nil.
type Call struct {
	ID                   string     `json:"id"`
	Scope                CallScope  `json:"scope"`
	RefID                string     `json:"ref_id"`
	Mode                 CallMode   `json:"mode"`
	Status               CallStatus `json:"status"`
	CircleTalkingEnabled bool       `json:"circle_talking_enabled"`
	CurrentSpeakerID     *string    `json:"current_speaker_id,omitempty"`
	SpeakerStartTime     *time.Time `json:"speaker_start_time,omitempty"`
	StartedBy            string     `json:"started_by"`
	CreatedAt            time.Time  `json:"created_at"`
	EndedAt              *time.Time `json:"ended_at,omitempty"`
	ModeratorMessage     *string    `json:"moderator_message,omitempty"`
}

// IsEnded reports whether the call reached its terminal state
func (c *Call) IsEnded() bool {
	return c.Status == CallStatusEnded
}

// InCircle reports whether circle talking is engaged with a speaker holding the floor
func (c *Call) InCircle() bool {
	return c.CircleTalkingEnabled && c.CurrentSpeakerID != nil
}

// CallUpdate is a partial update of a call document. Nil fields are left untouched.
type CallUpdate struct {
	Status               *CallStatus
	CircleTalkingEnabled *bool
	CurrentSpeakerID     *string
	SpeakerStartTime     *time.Time
	EndedAt              *time.Time
	ModeratorMessage     *string
	// ClearSpeaker removes both CurrentSpeakerID and SpeakerStartTime
	ClearSpeaker bool
}

// Apply writes the update onto c. Stores without field-level updates use it.
func (u CallUpdate) Apply(c *Call) {
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.CircleTalkingEnabled != nil {
		c.CircleTalkingEnabled = *u.CircleTalkingEnabled
	}
	if u.ClearSpeaker {
		c.CurrentSpeakerID = nil
		c.SpeakerStartTime = nil
	}
	if u.CurrentSpeakerID != nil {
		id := *u.CurrentSpeakerID
		c.CurrentSpeakerID = &id
	}
	if u.SpeakerStartTime != nil {
		t := *u.SpeakerStartTime
		c.SpeakerStartTime = &t
	}
	if u.EndedAt != nil {
		t := *u.EndedAt
		c.EndedAt = &t
	}
	if u.ModeratorMessage != nil {
		msg := *u.ModeratorMessage
		c.ModeratorMessage = &msg
	}
}

// CallParticipant represents a participant in a call, keyed by UserID
type CallParticipant struct {
	UserID              string    `json:"user_id"`
	Muted               bool      `json:"muted"`
	HandRaised          bool      `json:"hand_raised"`
	SpeakingOrder       *int      `json:"speaking_order,omitempty"`
	SpeakingTimeSeconds *int      `json:"speaking_time_seconds,omitempty"`
	JoinedAt            time.Time `json:"joined_at"`
}

// NewCallParticipant returns the record stored on join: muted, hand down, no order
func NewCallParticipant(userID string, joinedAt time.Time) *CallParticipant {
	return &CallParticipant{
		UserID:     userID,
		Muted:      true,
		HandRaised: false,
		JoinedAt:   joinedAt,
	}
}

// ParticipantUpdate is a partial update of a participant record
type ParticipantUpdate struct {
	Muted               *bool
	HandRaised          *bool
	SpeakingOrder       *int
	SpeakingTimeSeconds *int
}

// Apply writes the update onto p
func (u ParticipantUpdate) Apply(p *CallParticipant) {
	if u.Muted != nil {
		p.Muted = *u.Muted
	}
	if u.HandRaised != nil {
		p.HandRaised = *u.HandRaised
	}
	if u.SpeakingOrder != nil {
		order := *u.SpeakingOrder
		p.SpeakingOrder = &order
	}
	if u.SpeakingTimeSeconds != nil {
		secs := *u.SpeakingTimeSeconds
		p.SpeakingTimeSeconds = &secs
	}
}

// TransitionKind names a circle-talking transition
type TransitionKind string

const (
	TransitionStart TransitionKind = "start"
	TransitionNext  TransitionKind = "next"
	TransitionEnd   TransitionKind = "end"
)

// AnnouncementSource records how a moderator message was produced
type AnnouncementSource string

const (
	AnnouncementGenerated AnnouncementSource = "generated"
	AnnouncementDisabled  AnnouncementSource = "disabled"
	AnnouncementFallback  AnnouncementSource = "fallback"
)

// Announcement is the moderator message for a circle transition
type Announcement struct {
	Message string
	Source  AnnouncementSource
}

// UsedFallback reports whether a template replaced generated text
func (a Announcement) UsedFallback() bool {
	return a.Source != AnnouncementGenerated
}
