package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"bibleverse-backend/internal/domain"
)

const participantsCollection = "participants"

type participantDoc struct {
	UserID              string    `firestore:"userId"`
	Muted               bool      `firestore:"muted"`
	HandRaised          bool      `firestore:"handRaised"`
	SpeakingOrder       *int      `firestore:"speakingOrder,omitempty"`
	SpeakingTimeSeconds *int      `firestore:"speakingTimeSeconds,omitempty"`
	JoinedAt            time.Time `firestore:"joinedAt"`
}

func toParticipantDoc(p *domain.CallParticipant) participantDoc {
	return participantDoc{
		UserID:              p.UserID,
		Muted:               p.Muted,
		HandRaised:          p.HandRaised,
		SpeakingOrder:       p.SpeakingOrder,
		SpeakingTimeSeconds: p.SpeakingTimeSeconds,
		JoinedAt:            p.JoinedAt,
	}
}

func (d participantDoc) toDomain(userID string) *domain.CallParticipant {
	return &domain.CallParticipant{
		UserID:              userID,
		Muted:               d.Muted,
		HandRaised:          d.HandRaised,
		SpeakingOrder:       d.SpeakingOrder,
		SpeakingTimeSeconds: d.SpeakingTimeSeconds,
		JoinedAt:            d.JoinedAt,
	}
}

func participantUpdates(u domain.ParticipantUpdate) []firestore.Update {
	var updates []firestore.Update
	if u.Muted != nil {
		updates = append(updates, firestore.Update{Path: "muted", Value: *u.Muted})
	}
	if u.HandRaised != nil {
		updates = append(updates, firestore.Update{Path: "handRaised", Value: *u.HandRaised})
	}
	if u.SpeakingOrder != nil {
		updates = append(updates, firestore.Update{Path: "speakingOrder", Value: *u.SpeakingOrder})
	}
	if u.SpeakingTimeSeconds != nil {
		updates = append(updates, firestore.Update{Path: "speakingTimeSeconds", Value: *u.SpeakingTimeSeconds})
	}
	return updates
}

// ParticipantRepository stores participants in calls/{callId}/participants/{userId}
type ParticipantRepository struct {
	client *firestore.Client
}

// NewParticipantRepository creates a new ParticipantRepository
func NewParticipantRepository(client *firestore.Client) *ParticipantRepository {
	return &ParticipantRepository{client: client}
}

func (r *ParticipantRepository) collection(callID string) *firestore.CollectionRef {
	return r.client.Collection(callsCollection).Doc(callID).Collection(participantsCollection)
}

// Add writes the participant document, replacing any previous one
func (r *ParticipantRepository) Add(ctx context.Context, callID string, participant *domain.CallParticipant) error {
	if _, err := r.collection(callID).Doc(participant.UserID).Set(ctx, toParticipantDoc(participant)); err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// Remove deletes the participant document; deleting a missing document succeeds
func (r *ParticipantRepository) Remove(ctx context.Context, callID, userID string) error {
	if _, err := r.collection(callID).Doc(userID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	return nil
}

// Update applies a partial update to an existing participant
func (r *ParticipantRepository) Update(ctx context.Context, callID, userID string, update domain.ParticipantUpdate) error {
	updates := participantUpdates(update)
	if len(updates) == 0 {
		return nil
	}
	if _, err := r.collection(callID).Doc(userID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}
	return nil
}

// List returns every participant of a call in store order. Documents
// without joinedAt are included with a zero JoinedAt.
func (r *ParticipantRepository) List(ctx context.Context, callID string) ([]*domain.CallParticipant, error) {
	iter := r.collection(callID).Documents(ctx)
	defer iter.Stop()

	participants := make([]*domain.CallParticipant, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list participants: %w", err)
		}

		var doc participantDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode participant: %w", err)
		}
		participants = append(participants, doc.toDomain(snap.Ref.ID))
	}

	return participants, nil
}

// Get returns a participant or nil for a non-member
func (r *ParticipantRepository) Get(ctx context.Context, callID, userID string) (*domain.CallParticipant, error) {
	snap, err := r.collection(callID).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	var doc participantDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode participant: %w", err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}
