// Package firestore stores calls, participants and room tasks in Cloud Firestore.
//
// Layout:
//
//	calls/{callId}
//	calls/{callId}/participants/{userId}
//	rooms/{roomId}/tasks/{taskId}
//	rooms/{roomId}/taskProgress/{userId}_{taskId}
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"bibleverse-backend/internal/domain"
)

const callsCollection = "calls"

type callDoc struct {
	Scope                string     `firestore:"scope"`
	RefID                string     `firestore:"refId"`
	Mode                 string     `firestore:"mode"`
	Status               string     `firestore:"status"`
	CircleTalkingEnabled bool       `firestore:"circleTalkingEnabled"`
	CurrentSpeakerID     *string    `firestore:"currentSpeakerId,omitempty"`
	SpeakerStartTime     *time.Time `firestore:"speakerStartTime,omitempty"`
	StartedBy            string     `firestore:"startedBy"`
	CreatedAt            time.Time  `firestore:"createdAt"`
	EndedAt              *time.Time `firestore:"endedAt,omitempty"`
	ModeratorMessage     *string    `firestore:"moderatorMessage,omitempty"`
}

func toCallDoc(c *domain.Call) callDoc {
	return callDoc{
		Scope:                string(c.Scope),
		RefID:                c.RefID,
		Mode:                 string(c.Mode),
		Status:               string(c.Status),
		CircleTalkingEnabled: c.CircleTalkingEnabled,
		CurrentSpeakerID:     c.CurrentSpeakerID,
		SpeakerStartTime:     c.SpeakerStartTime,
		StartedBy:            c.StartedBy,
		CreatedAt:            c.CreatedAt,
		EndedAt:              c.EndedAt,
		ModeratorMessage:     c.ModeratorMessage,
	}
}

func (d callDoc) toDomain(id string) *domain.Call {
	return &domain.Call{
		ID:                   id,
		Scope:                domain.CallScope(d.Scope),
		RefID:                d.RefID,
		Mode:                 domain.CallMode(d.Mode),
		Status:               domain.CallStatus(d.Status),
		CircleTalkingEnabled: d.CircleTalkingEnabled,
		CurrentSpeakerID:     d.CurrentSpeakerID,
		SpeakerStartTime:     d.SpeakerStartTime,
		StartedBy:            d.StartedBy,
		CreatedAt:            d.CreatedAt,
		EndedAt:              d.EndedAt,
		ModeratorMessage:     d.ModeratorMessage,
	}
}

// callUpdates converts a partial update into field paths.
// Clearing the speaker deletes both fields so they are never half set.
func callUpdates(u domain.CallUpdate) []firestore.Update {
	var updates []firestore.Update
	if u.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: string(*u.Status)})
	}
	if u.CircleTalkingEnabled != nil {
		updates = append(updates, firestore.Update{Path: "circleTalkingEnabled", Value: *u.CircleTalkingEnabled})
	}
	if u.ClearSpeaker && u.CurrentSpeakerID == nil {
		updates = append(updates, firestore.Update{Path: "currentSpeakerId", Value: firestore.Delete})
	}
	if u.ClearSpeaker && u.SpeakerStartTime == nil {
		updates = append(updates, firestore.Update{Path: "speakerStartTime", Value: firestore.Delete})
	}
	if u.CurrentSpeakerID != nil {
		updates = append(updates, firestore.Update{Path: "currentSpeakerId", Value: *u.CurrentSpeakerID})
	}
	if u.SpeakerStartTime != nil {
		updates = append(updates, firestore.Update{Path: "speakerStartTime", Value: *u.SpeakerStartTime})
	}
	if u.EndedAt != nil {
		updates = append(updates, firestore.Update{Path: "endedAt", Value: *u.EndedAt})
	}
	if u.ModeratorMessage != nil {
		updates = append(updates, firestore.Update{Path: "moderatorMessage", Value: *u.ModeratorMessage})
	}
	return updates
}

// CallRepository stores call documents
type CallRepository struct {
	client *firestore.Client
}

// NewCallRepository creates a new CallRepository
func NewCallRepository(client *firestore.Client) *CallRepository {
	return &CallRepository{client: client}
}

// Create writes a new call document; it fails if the id is taken
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	if _, err := r.client.Collection(callsCollection).Doc(call.ID).Create(ctx, toCallDoc(call)); err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}
	return nil
}

// GetByID returns the call or nil when absent
func (r *CallRepository) GetByID(ctx context.Context, callID string) (*domain.Call, error) {
	snap, err := r.client.Collection(callsCollection).Doc(callID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	var doc callDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode call: %w", err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// Update applies a partial update and returns the stored call, or nil when absent
func (r *CallRepository) Update(ctx context.Context, callID string, update domain.CallUpdate) (*domain.Call, error) {
	updates := callUpdates(update)
	if len(updates) > 0 {
		_, err := r.client.Collection(callsCollection).Doc(callID).Update(ctx, updates)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to update call: %w", err)
		}
	}
	return r.GetByID(ctx, callID)
}
