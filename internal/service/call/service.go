package call

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bibleverse-backend/internal/domain"
	appctx "bibleverse-backend/pkg/context"
	apperrors "bibleverse-backend/pkg/errors"
	"bibleverse-backend/pkg/logger"
	"bibleverse-backend/pkg/metrics"
)

// CallRepository stores call documents. GetByID and Update return (nil, nil) for an absent call.
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByID(ctx context.Context, callID string) (*domain.Call, error)
	Update(ctx context.Context, callID string, update domain.CallUpdate) (*domain.Call, error)
}

// ParticipantRepository stores the participants of a call.
// Get returns (nil, nil) for a non-member; Remove of a non-member is not an error.
type ParticipantRepository interface {
	Add(ctx context.Context, callID string, participant *domain.CallParticipant) error
	Remove(ctx context.Context, callID, userID string) error
	Update(ctx context.Context, callID, userID string, update domain.ParticipantUpdate) error
	List(ctx context.Context, callID string) ([]*domain.CallParticipant, error)
	Get(ctx context.Context, callID, userID string) (*domain.CallParticipant, error)
}

// Announcer produces the moderator message for a transition. It never fails.
type Announcer interface {
	Announce(ctx context.Context, kind domain.TransitionKind, outgoingID *string, incomingID string) domain.Announcement
}

// TranscriptRepository keeps an append-only log of circle transitions
type TranscriptRepository interface {
	Append(ctx context.Context, entry *domain.TranscriptEntry) error
	ListByCall(ctx context.Context, callID string, limit int) ([]*domain.TranscriptEntry, error)
}

// EventPublisher pushes persisted transitions to subscribers
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.CallEvent) error
}

// Authorizer reports whether requesterID may moderate call
type Authorizer func(ctx context.Context, call *domain.Call, requesterID string) bool

// StarterOrAdmin allows the user who started the call and admins
func StarterOrAdmin(ctx context.Context, call *domain.Call, requesterID string) bool {
	if requesterID != "" && requesterID == call.StartedBy {
		return true
	}
	actor, ok := appctx.ActorFromContext(ctx)
	return ok && actor.IsAdmin()
}

// AllowAll skips moderation checks. Development only.
func AllowAll(context.Context, *domain.Call, string) bool {
	return true
}

// Options configures the Service. Zero values select defaults.
type Options struct {
	OrderRule  OrderRule
	Authorizer Authorizer
	Locker     Locker
	LockWait   time.Duration
	Transcript TranscriptRepository
	Events     EventPublisher
	Metrics    *metrics.Metrics
	Now        func() time.Time

	// TranscriptLimit is the page size when a caller asks for none; default 100
	TranscriptLimit int
}

// Service implements the call lifecycle and circle talking
type Service struct {
	calls        CallRepository
	participants ParticipantRepository
	announcer    Announcer

	orderRule  OrderRule
	authorize  Authorizer
	locker     Locker
	lockWait   time.Duration
	transcript TranscriptRepository
	pageSize   int
	events     EventPublisher
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewService creates a new call service
func NewService(calls CallRepository, participants ParticipantRepository, announcer Announcer, opts Options) *Service {
	s := &Service{
		calls:        calls,
		participants: participants,
		announcer:    announcer,
		orderRule:    opts.OrderRule,
		authorize:    opts.Authorizer,
		locker:       opts.Locker,
		lockWait:     opts.LockWait,
		transcript:   opts.Transcript,
		pageSize:     opts.TranscriptLimit,
		events:       opts.Events,
		metrics:      opts.Metrics,
		now:          opts.Now,
	}
	if s.orderRule == "" {
		s.orderRule = OrderByJoin
	}
	if s.authorize == nil {
		s.authorize = StarterOrAdmin
	}
	if s.locker == nil {
		s.locker = NewLocalLocker()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.pageSize <= 0 {
		s.pageSize = 100
	}
	return s
}

// CreateCallInput contains call creation data
type CreateCallInput struct {
	Scope     domain.CallScope
	RefID     string
	Mode      domain.CallMode
	StartedBy string
	// CircleTalkingEnabled is accepted for compatibility; circle talking only starts through StartCircleTalking
	CircleTalkingEnabled bool
}

// CreateCall creates an active call without circle talking
func (s *Service) CreateCall(ctx context.Context, input *CreateCallInput) (*domain.Call, error) {
	if input == nil {
		return nil, s.fail("create_call", apperrors.ValidationError("Input is required"))
	}
	if _, err := domain.ParseCallScope(string(input.Scope)); err != nil {
		return nil, s.fail("create_call", apperrors.ValidationError("Scope must be room or event"))
	}
	if _, err := domain.ParseCallMode(string(input.Mode)); err != nil {
		return nil, s.fail("create_call", apperrors.ValidationError("Mode must be audio or video"))
	}
	if strings.TrimSpace(input.RefID) == "" {
		return nil, s.fail("create_call", apperrors.MissingFieldError("ref_id"))
	}
	if strings.TrimSpace(input.StartedBy) == "" {
		return nil, s.fail("create_call", apperrors.MissingFieldError("started_by"))
	}

	call := &domain.Call{
		ID:        uuid.NewString(),
		Scope:     input.Scope,
		RefID:     input.RefID,
		Mode:      input.Mode,
		Status:    domain.CallStatusActive,
		StartedBy: input.StartedBy,
		CreatedAt: s.now(),
	}

	if err := s.calls.Create(ctx, call); err != nil {
		return nil, s.fail("create_call", apperrors.DatabaseError(err))
	}

	s.metrics.RecordCall(string(call.Scope), string(call.Mode))
	logger.Info("Call created",
		logger.CallID(call.ID),
		zap.String("scope", string(call.Scope)),
		zap.String("ref_id", call.RefID),
		zap.String("mode", string(call.Mode)),
		logger.UserID(call.StartedBy),
	)

	return call, nil
}

// GetCall retrieves a call
func (s *Service) GetCall(ctx context.Context, callID string) (*domain.Call, error) {
	call, err := s.loadCall(ctx, callID)
	if err != nil {
		return nil, s.fail("get_call", err)
	}
	return call, nil
}

// ListParticipants returns the participants of a call in rotation order
func (s *Service) ListParticipants(ctx context.Context, callID string) ([]*domain.CallParticipant, error) {
	if _, err := s.loadCall(ctx, callID); err != nil {
		return nil, s.fail("list_participants", err)
	}

	participants, err := s.participants.List(ctx, callID)
	if err != nil {
		return nil, s.fail("list_participants", apperrors.DatabaseError(err))
	}
	return rotation(participants), nil
}

// JoinCall adds userID to an active call. Joining twice leaves the existing record untouched.
func (s *Service) JoinCall(ctx context.Context, callID, userID string) (*domain.CallParticipant, error) {
	const op = "join_call"
	if userID == "" {
		return nil, s.fail(op, apperrors.MissingFieldError("user_id"))
	}

	unlock, err := s.lock(ctx, callID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	defer unlock()

	call, err := s.loadCall(ctx, callID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if call.IsEnded() {
		return nil, s.fail(op, apperrors.CallEndedError())
	}

	existing, err := s.participants.Get(ctx, callID, userID)
	if err != nil {
		return nil, s.fail(op, apperrors.DatabaseError(err))
	}
	if existing != nil {
		return existing, nil
	}

	participant := domain.NewCallParticipant(userID, s.now())
	if err := s.participants.Add(ctx, callID, participant); err != nil {
		return nil, s.fail(op, apperrors.DatabaseError(err))
	}

	s.metrics.RecordTransition(op)
	logger.Info("Participant joined call", logger.CallID(callID), logger.UserID(userID))
	s.publish(ctx, &domain.CallEvent{Type: domain.CallEventJoined, CallID: callID, ActorID: userID})

	return participant, nil
}

// LeaveCall removes userID from the call. Removing a non-member is not an error.
// A departing current speaker keeps the speaker slot until the next AdvanceSpeaker.
func (s *Service) LeaveCall(ctx context.Context, callID, userID string) error {
	const op = "leave_call"

	unlock, err := s.lock(ctx, callID)
	if err != nil {
		return s.fail(op, err)
	}
	defer unlock()

	if err := s.participants.Remove(ctx, callID, userID); err != nil {
		return s.fail(op, apperrors.DatabaseError(err))
	}

	s.metrics.RecordTransition(op)
	logger.Info("Participant left call", logger.CallID(callID), logger.UserID(userID))
	s.publish(ctx, &domain.CallEvent{Type: domain.CallEventLeft, CallID: callID, ActorID: userID})

	return nil
}

// RaiseHand flags that userID wants to speak
func (s *Service) RaiseHand(ctx context.Context, callID, userID string) (*domain.CallParticipant, error) {
	const op = "raise_hand"

	unlock, err := s.lock(ctx, callID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	defer unlock()

	participant, err := s.participants.Get(ctx, callID, userID)
	if err != nil {
		return nil, s.fail(op, apperrors.DatabaseError(err))
	}
	if participant == nil {
		return nil, s.fail(op, apperrors.ParticipantNotFoundError())
	}

	raised := true
	if err := s.participants.Update(ctx, callID, userID, domain.ParticipantUpdate{HandRaised: &raised}); err != nil {
		return nil, s.fail(op, apperrors.DatabaseError(err))
	}
	participant.HandRaised = true

	s.metrics.RecordTransition(op)
	s.publish(ctx, &domain.CallEvent{Type: domain.CallEventHandRaised, CallID: callID, ActorID: userID})

	return participant, nil
}

// StartCircleTalking assigns speaking orders 0..N-1 and gives the floor to order 0.
// Calling it again while a circle is running restarts the rotation.
func (s *Service) StartCircleTalking(ctx context.Context, callID, requesterID string) (*domain.Call, error) {
	const op = "start_circle_talking"

	unlock, err := s.lock(ctx, callID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	defer unlock()

	call, err := s.loadCall(ctx, callID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if call.IsEnded() {
		return nil, s.fail(op, apperrors.CallEndedError())
	}
	if !s.authorize(ctx, call, requesterID) {
		return nil, s.fail(op, apperrors.ForbiddenError("Only the call starter or an admin can start circle talking"))
	}

	participants, err := s.participants.List(ctx, callID)
	if err != nil {
		return nil, s.fail(op, apperrors.DatabaseError(err))
	}
	if len(participants) == 0 {
		return nil, s.fail(op, apperrors.NoParticipantsError())
	}

	ordered := s.orderRule.arrange(participants)
	for i, p := range ordered {
		order, muted, lowered, zero := i, i != 0, false, 0
		update := domain.ParticipantUpdate{
			Muted:               &muted,
			HandRaised:          &lowered,
			SpeakingOrder:       &order,
			SpeakingTimeSeconds: &zero,
		}
		if err := s.participants.Update(ctx, callID, p.UserID, update); err != nil {
			return nil, s.fail(op, apperrors.DatabaseError(err))
		}
	}

	first := ordered[0].UserID
	announcement := s.announcer.Announce(ctx, domain.TransitionStart, nil, first)

	now := s.now()
	enabled := true
	updated, err := s.calls.Update(ctx, callID, domain.CallUpdate{
		CircleTalkingEnabled: &enabled,
		CurrentSpeakerID:     &first,
		SpeakerStartTime:     &now,
		ModeratorMessage:     &announcement.Message,
	})
	if err != nil {
		return nil, s.fail(op, apperrors.DatabaseError(err))
	}
	if updated == nil {
		return nil, s.fail(op, apperrors.CallNotFoundError())
	}

	s.metrics.RecordTransition(op)
	logger.Info("Circle talking started",
		logger.CallID(callID),
		zap.String("speaker_id", first),
		zap.Int("participants", len(ordered)),
		zap.String("order_rule", string(s.orderRule)),
		zap.String("announcement_source", string(announcement.Source)),
	)

	s.record(ctx, domain.TransitionStart, callID, nil, &first, announcement)
	s.publish(ctx, &domain.CallEvent{
		Type:      domain.CallEventCircleStarted,
		CallID:    callID,
		ActorID:   requesterID,
		SpeakerID: first,
		Message:   announcement.Message,
	})

	return updated, nil
}

// AdvanceSpeaker passes the floor to the next participant in rotation,
// wrapping from the last back to the first.
func (s *Service) AdvanceSpeaker(ctx context.Context, callID, requesterID string) (*domain.Call, error) {
	const op = "advance_speaker"

	unlock, err := s.lock(ctx, callID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	defer unlock()

	call, err := s.loadCall(ctx, callID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if !s.authorize(ctx, call, requesterID) {
		return nil, s.fail(op, apperrors.ForbiddenError("Only the call starter or an admin can advance the speaker"))
	}
	if !call.InCircle() {
		return nil, s.fail(op, apperrors.CircleNotActiveError())
	}

	participants, err := s.participants.List(ctx, callID)
	if err != nil {
		return nil, s.fail(op, apperrors.DatabaseError(err))
	}
	if len(participants) == 0 {
		return nil, s.fail(op, apperrors.NoParticipantsError())
	}

	ordered := rotation(participants)
	outgoingID := *call.CurrentSpeakerID
	// A departed speaker has index -1, so the rotation resumes at the first participant
	currentIdx := indexOf(ordered, outgoingID)
	incoming := ordered[(currentIdx+1)%len(ordered)]
	now := s.now()

	if currentIdx >= 0 {
		outgoing := ordered[currentIdx]
		spoken := s.creditSpeakingTime(call, outgoing, now)
		update := domain.ParticipantUpdate{SpeakingTimeSeconds: &spoken}
		if outgoing.UserID != incoming.UserID {
			muted := true
			update.Muted = &muted
		}
		if err := s.participants.Update(ctx, callID, outgoing.UserID, update); err != nil {
			return nil, s.fail(op, apperrors.DatabaseError(err))
		}
	}

	unmuted, lowered := false, false
	if err := s.participants.Update(ctx, callID, incoming.UserID, domain.ParticipantUpdate{
		Muted:      &unmuted,
		HandRaised: &lowered,
	}); err != nil {
		return nil, s.fail(op, apperrors.DatabaseError(err))
	}

	announcement := s.announcer.Announce(ctx, domain.TransitionNext, &outgoingID, incoming.UserID)

	incomingID := incoming.UserID
	updated, err := s.calls.Update(ctx, callID, domain.CallUpdate{
		CurrentSpeakerID: &incomingID,
		SpeakerStartTime: &now,
		ModeratorMessage: &announcement.Message,
	})
	if err != nil {
		return nil, s.fail(op, apperrors.DatabaseError(err))
	}
	if updated == nil {
		return nil, s.fail(op, apperrors.CallNotFoundError())
	}

	s.metrics.RecordTransition(op)
	logger.Info("Speaker advanced",
		logger.CallID(callID),
		zap.String("outgoing_speaker_id", outgoingID),
		zap.String("incoming_speaker_id", incomingID),
		zap.Bool("outgoing_present", currentIdx >= 0),
		zap.String("announcement_source", string(announcement.Source)),
	)

	s.record(ctx, domain.TransitionNext, callID, &outgoingID, &incomingID, announcement)
	s.publish(ctx, &domain.CallEvent{
		Type:      domain.CallEventSpeakerChanged,
		CallID:    callID,
		ActorID:   requesterID,
		SpeakerID: incomingID,
		Message:   announcement.Message,
	})

	return updated, nil
}

// EndCall moves the call to its terminal state
func (s *Service) EndCall(ctx context.Context, callID, requesterID string) (*domain.Call, error) {
	const op = "end_call"

	unlock, err := s.lock(ctx, callID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	defer unlock()

	call, err := s.loadCall(ctx, callID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if !s.authorize(ctx, call, requesterID) {
		return nil, s.fail(op, apperrors.ForbiddenError("Only the call starter or an admin can end the call"))
	}
	if call.IsEnded() {
		return nil, s.fail(op, apperrors.CallEndedError())
	}

	now := s.now()
	var finalSpeaker *string
	if call.InCircle() {
		finalSpeaker = call.CurrentSpeakerID
		speaker, err := s.participants.Get(ctx, callID, *finalSpeaker)
		if err != nil {
			return nil, s.fail(op, apperrors.DatabaseError(err))
		}
		if speaker != nil {
			spoken := s.creditSpeakingTime(call, speaker, now)
			if err := s.participants.Update(ctx, callID, speaker.UserID, domain.ParticipantUpdate{SpeakingTimeSeconds: &spoken}); err != nil {
				return nil, s.fail(op, apperrors.DatabaseError(err))
			}
		}
	}

	ended, disabled := domain.CallStatusEnded, false
	updated, err := s.calls.Update(ctx, callID, domain.CallUpdate{
		Status:               &ended,
		CircleTalkingEnabled: &disabled,
		EndedAt:              &now,
		ClearSpeaker:         true,
	})
	if err != nil {
		return nil, s.fail(op, apperrors.DatabaseError(err))
	}
	if updated == nil {
		return nil, s.fail(op, apperrors.CallNotFoundError())
	}

	s.metrics.RecordTransition(op)
	logger.Info("Call ended",
		logger.CallID(callID),
		logger.UserID(requesterID),
		zap.Duration("duration", now.Sub(call.CreatedAt)),
	)

	s.record(ctx, domain.TransitionEnd, callID, finalSpeaker, nil, domain.Announcement{})
	s.publish(ctx, &domain.CallEvent{Type: domain.CallEventEnded, CallID: callID, ActorID: requesterID})

	return updated, nil
}

// GetTranscript returns up to limit transitions of a call, oldest first
func (s *Service) GetTranscript(ctx context.Context, callID string, limit int) ([]*domain.TranscriptEntry, error) {
	if _, err := s.loadCall(ctx, callID); err != nil {
		return nil, s.fail("get_transcript", err)
	}
	if s.transcript == nil {
		return []*domain.TranscriptEntry{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = s.pageSize
	}

	entries, err := s.transcript.ListByCall(ctx, callID, limit)
	if err != nil {
		return nil, s.fail("get_transcript", apperrors.DatabaseError(err))
	}
	return entries, nil
}

func (s *Service) loadCall(ctx context.Context, callID string) (*domain.Call, error) {
	if callID == "" {
		return nil, apperrors.MissingFieldError("call_id")
	}
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if call == nil {
		return nil, apperrors.CallNotFoundError()
	}
	return call, nil
}

func (s *Service) lock(ctx context.Context, callID string) (func(), error) {
	if s.lockWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockWait)
		defer cancel()
	}

	start := time.Now()
	unlock, err := s.locker.Lock(ctx, callID)
	if err != nil {
		s.metrics.ObserveLockWait("timeout", time.Since(start))
		logger.Warn("Failed to acquire call lock", logger.CallID(callID), zap.Error(err))
		return nil, apperrors.LockTimeoutError(err)
	}
	s.metrics.ObserveLockWait("acquired", time.Since(start))
	return unlock, nil
}

// creditSpeakingTime returns the participant's total after the turn that ends at now
func (s *Service) creditSpeakingTime(call *domain.Call, p *domain.CallParticipant, now time.Time) int {
	total := 0
	if p.SpeakingTimeSeconds != nil {
		total = *p.SpeakingTimeSeconds
	}
	if call.SpeakerStartTime == nil {
		return total
	}
	turn := now.Sub(*call.SpeakerStartTime)
	if turn < 0 {
		turn = 0
	}
	s.metrics.ObserveSpeakingTurn(turn)
	return total + int(turn.Seconds())
}

// record appends a transcript entry; failures are logged only
func (s *Service) record(ctx context.Context, kind domain.TransitionKind, callID string, outgoing, incoming *string, a domain.Announcement) {
	if s.transcript == nil {
		return
	}
	entry := &domain.TranscriptEntry{
		CallID:            callID,
		EntryID:           uuid.Must(uuid.NewV7()),
		Kind:              kind,
		OutgoingSpeakerID: outgoing,
		IncomingSpeakerID: incoming,
		Message:           a.Message,
		Fallback:          kind != domain.TransitionEnd && a.UsedFallback(),
		CreatedAt:         s.now(),
	}
	if err := s.transcript.Append(ctx, entry); err != nil {
		logger.Warn("Failed to append call transcript",
			logger.CallID(callID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

// publish notifies subscribers; failures are logged only
func (s *Service) publish(ctx context.Context, event *domain.CallEvent) {
	if s.events == nil {
		return
	}
	event.Timestamp = s.now()
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish call event",
			logger.CallID(event.CallID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

func (s *Service) fail(op string, err error) error {
	code := string(apperrors.ErrCodeInternal)
	if appErr := apperrors.GetAppError(err); appErr != nil {
		code = string(appErr.Code)
	}
	s.metrics.RecordCallError(op, code)
	return err
}
