package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bibleverse-backend/internal/domain"
	"bibleverse-backend/internal/repository/memory"
	appctx "bibleverse-backend/pkg/context"
	apperrors "bibleverse-backend/pkg/errors"
)

// MockCallRepository is a mock implementation of CallRepository
type MockCallRepository struct {
	mock.Mock
}

func (m *MockCallRepository) Create(ctx context.Context, call *domain.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *MockCallRepository) GetByID(ctx context.Context, callID string) (*domain.Call, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

func (m *MockCallRepository) Update(ctx context.Context, callID string, update domain.CallUpdate) (*domain.Call, error) {
	args := m.Called(ctx, callID, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event *domain.CallEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockTranscriptRepository is a mock implementation of TranscriptRepository
type MockTranscriptRepository struct {
	mock.Mock
}

func (m *MockTranscriptRepository) Append(ctx context.Context, entry *domain.TranscriptEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockTranscriptRepository) ListByCall(ctx context.Context, callID string, limit int) ([]*domain.TranscriptEntry, error) {
	args := m.Called(ctx, callID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TranscriptEntry), args.Error(1)
}

// templateAnnouncer behaves like a disabled generator
type templateAnnouncer struct {
	mu    sync.Mutex
	kinds []domain.TransitionKind
}

func (a *templateAnnouncer) Announce(_ context.Context, kind domain.TransitionKind, _ *string, incomingID string) domain.Announcement {
	a.mu.Lock()
	a.kinds = append(a.kinds, kind)
	a.mu.Unlock()
	if kind == domain.TransitionStart {
		return domain.Announcement{Message: "Let us begin. " + incomingID + ", you have the floor.", Source: domain.AnnouncementFallback}
	}
	return domain.Announcement{Message: "Amen. " + incomingID + ", please proceed.", Source: domain.AnnouncementFallback}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc          *Service
	participants *memory.ParticipantRepository
	announcer    *templateAnnouncer
	clock        *fakeClock
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)}
	participants := memory.NewParticipantRepository()
	announcer := &templateAnnouncer{}
	opts.Now = clock.Now
	return &fixture{
		svc:          NewService(memory.NewCallRepository(), participants, announcer, opts),
		participants: participants,
		announcer:    announcer,
		clock:        clock,
	}
}

// callWith creates a call started by "host" and joins users one second apart
func (f *fixture) callWith(t *testing.T, users ...string) *domain.Call {
	t.Helper()
	call, err := f.svc.CreateCall(context.Background(), &CreateCallInput{
		Scope:     domain.CallScopeRoom,
		RefID:     "room-1",
		Mode:      domain.CallModeAudio,
		StartedBy: "host",
	})
	require.NoError(t, err)

	for _, u := range users {
		_, err := f.svc.JoinCall(context.Background(), call.ID, u)
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	return call
}

func (f *fixture) byUser(t *testing.T, callID string) map[string]*domain.CallParticipant {
	t.Helper()
	list, err := f.participants.List(context.Background(), callID)
	require.NoError(t, err)
	out := make(map[string]*domain.CallParticipant, len(list))
	for _, p := range list {
		out[p.UserID] = p
	}
	return out
}

func (f *fixture) unmuted(t *testing.T, callID string) []string {
	t.Helper()
	var out []string
	for id, p := range f.byUser(t, callID) {
		if !p.Muted {
			out = append(out, id)
		}
	}
	return out
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, code), "expected %s, got %v", code, err)
}

func TestCreateCall(t *testing.T) {
	f := newFixture(t, Options{})

	call, err := f.svc.CreateCall(context.Background(), &CreateCallInput{
		Scope:                domain.CallScopeEvent,
		RefID:                "event-9",
		Mode:                 domain.CallModeVideo,
		StartedBy:            "host",
		CircleTalkingEnabled: true,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, call.ID)
	assert.Equal(t, domain.CallStatusActive, call.Status)
	assert.False(t, call.CircleTalkingEnabled, "circle talking only starts explicitly")
	assert.Nil(t, call.CurrentSpeakerID)
	assert.Nil(t, call.SpeakerStartTime)
}

func TestCreateCall_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.CreateCall(ctx, &CreateCallInput{Scope: "chat", RefID: "r", Mode: domain.CallModeAudio, StartedBy: "u"})
	assertCode(t, err, apperrors.ErrCodeValidation)

	_, err = f.svc.CreateCall(ctx, &CreateCallInput{Scope: domain.CallScopeRoom, RefID: "r", Mode: "hologram", StartedBy: "u"})
	assertCode(t, err, apperrors.ErrCodeValidation)

	_, err = f.svc.CreateCall(ctx, &CreateCallInput{Scope: domain.CallScopeRoom, Mode: domain.CallModeAudio, StartedBy: "u"})
	assertCode(t, err, apperrors.ErrCodeMissingField)

	_, err = f.svc.CreateCall(ctx, &CreateCallInput{Scope: domain.CallScopeRoom, RefID: "r", Mode: domain.CallModeAudio})
	assertCode(t, err, apperrors.ErrCodeMissingField)
}

func TestCircleTalking_ThreeParticipantScenario(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	call := f.callWith(t, "A", "B", "C")

	updated, err := f.svc.StartCircleTalking(ctx, call.ID, "host")
	require.NoError(t, err)
	require.NotNil(t, updated.CurrentSpeakerID)
	assert.Equal(t, "A", *updated.CurrentSpeakerID)
	assert.True(t, updated.CircleTalkingEnabled)
	assert.NotNil(t, updated.SpeakerStartTime)

	ps := f.byUser(t, call.ID)
	assert.Equal(t, 0, *ps["A"].SpeakingOrder)
	assert.Equal(t, 1, *ps["B"].SpeakingOrder)
	assert.Equal(t, 2, *ps["C"].SpeakingOrder)
	assert.Equal(t, []string{"A"}, f.unmuted(t, call.ID))

	for _, want := range []string{"B", "C", "A"} {
		updated, err = f.svc.AdvanceSpeaker(ctx, call.ID, "host")
		require.NoError(t, err)
		assert.Equal(t, want, *updated.CurrentSpeakerID)
		assert.Equal(t, []string{want}, f.unmuted(t, call.ID))
	}
}

func TestAdvanceSpeaker_RotationClosure(t *testing.T) {
	for n := 1; n <= 5; n++ {
		t.Run(fmt.Sprintf("%d participants", n), func(t *testing.T) {
			f := newFixture(t, Options{})
			ctx := context.Background()

			users := make([]string, n)
			for i := range users {
				users[i] = fmt.Sprintf("user-%d", i)
			}
			call := f.callWith(t, users...)

			started, err := f.svc.StartCircleTalking(ctx, call.ID, "host")
			require.NoError(t, err)
			first := *started.CurrentSpeakerID

			var current *domain.Call
			for i := 0; i < n; i++ {
				current, err = f.svc.AdvanceSpeaker(ctx, call.ID, "host")
				require.NoError(t, err)
				assert.Len(t, f.unmuted(t, call.ID), 1)
			}
			assert.Equal(t, first, *current.CurrentSpeakerID)
		})
	}
}

func TestAdvanceSpeaker_OrderImmutability(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	call := f.callWith(t, "A", "B", "C", "D")

	_, err := f.svc.StartCircleTalking(ctx, call.ID, "host")
	require.NoError(t, err)

	before := map[string]int{}
	for id, p := range f.byUser(t, call.ID) {
		before[id] = *p.SpeakingOrder
	}

	for i := 0; i < 7; i++ {
		_, err := f.svc.AdvanceSpeaker(ctx, call.ID, "host")
		require.NoError(t, err)
	}

	for id, p := range f.byUser(t, call.ID) {
		assert.Equal(t, before[id], *p.SpeakingOrder, "order of %s changed", id)
	}
}

func TestAdvanceSpeaker_LowersIncomingHand(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	call := f.callWith(t, "A", "B")

	_, err := f.svc.StartCircleTalking(ctx, call.ID, "host")
	require.NoError(t, err)
	_, err = f.svc.RaiseHand(ctx, call.ID, "B")
	require.NoError(t, err)
	assert.True(t, f.byUser(t, call.ID)["B"].HandRaised)

	_, err = f.svc.AdvanceSpeaker(ctx, call.ID, "host")
	require.NoError(t, err)
	assert.False(t, f.byUser(t, call.ID)["B"].HandRaised)
}

func TestAdvanceSpeaker_CreditsSpeakingTime(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	call := f.callWith(t, "A", "B")

	_, err := f.svc.StartCircleTalking(ctx, call.ID, "host")
	require.NoError(t, err)

	f.clock.Advance(45 * time.Second)
	_, err = f.svc.AdvanceSpeaker(ctx, call.ID, "host")
	require.NoError(t, err)

	f.clock.Advance(20 * time.Second)
	_, err = f.svc.AdvanceSpeaker(ctx, call.ID, "host")
	require.NoError(t, err)

	f.clock.Advance(15 * time.Second)
	_, err = f.svc.AdvanceSpeaker(ctx, call.ID, "host")
	require.NoError(t, err)

	ps := f.byUser(t, call.ID)
	assert.Equal(t, 60, *ps["A"].SpeakingTimeSeconds)
	assert.Equal(t, 20, *ps["B"].SpeakingTimeSeconds)
}

func TestAdvanceSpeaker_DepartedSpeakerRestartsAtFirst(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	call := f.callWith(t, "A", "B", "C")

	_, err := f.svc.StartCircleTalking(ctx, call.ID, "host")
	require.NoError(t, err)
	_, err = f.svc.AdvanceSpeaker(ctx, call.ID, "host")
	require.NoError(t, err)

	require.NoError(t, f.svc.LeaveCall(ctx, call.ID, "B"))

	// The slot stays stale until the next advance
	stale, err := f.svc.GetCall(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", *stale.CurrentSpeakerID)

	updated, err := f.svc.AdvanceSpeaker(ctx, call.ID, "host")
	require.NoError(t, err)
	assert.Equal(t, "A", *updated.CurrentSpeakerID)
	assert.Equal(t, []string{"A"}, f.unmuted(t, call.ID))
}

func TestAdvanceSpeaker_NobodyLeft(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	call := f.callWith(t, "A")

	_, err := f.svc.StartCircleTalking(ctx, call.ID, "host")
	require.NoError(t, err)
	require.NoError(t, f.svc.LeaveCall(ctx, call.ID, "A"))

	_, err = f.svc.AdvanceSpeaker(ctx, call.ID, "host")
	assertCode(t, err, apperrors.ErrCodeNoParticipants)
}

func TestAdvanceSpeaker_CircleNotActive(t *testing.T) {
	f := newFixture(t, Options{})
	call := f.callWith(t, "A", "B")

	_, err := f.svc.AdvanceSpeaker(context.Background(), call.ID, "host")
	assertCode(t, err, apperrors.ErrCodeCircleNotActive)
}

func TestStartCircleTalking_Errors(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.StartCircleTalking(ctx, "missing", "host")
	assertCode(t, err, apperrors.ErrCodeCallNotFound)

	empty := f.callWith(t)
	_, err = f.svc.StartCircleTalking(ctx, empty.ID, "host")
	assertCode(t, err, apperrors.ErrCodeNoParticipants)

	ended := f.callWith(t, "A")
	_, err = f.svc.EndCall(ctx, ended.ID, "host")
	require.NoError(t, err)
	_, err = f.svc.StartCircleTalking(ctx, ended.ID, "host")
	assertCode(t, err, apperrors.ErrCodeCallEnded)
}

func TestStartCircleTalking_FallbackAnnouncementNamesSpeaker(t *testing.T) {
	transcript := new(MockTranscriptRepository)
	transcript.On("Append", mock.Anything, mock.MatchedBy(func(e *domain.TranscriptEntry) bool {
		return e.Kind == domain.TransitionStart && e.Fallback && *e.IncomingSpeakerID == "A"
	})).Return(errors.New("cassandra down"))

	f := newFixture(t, Options{Transcript: transcript})
	call := f.callWith(t, "A", "B")

	updated, err := f.svc.StartCircleTalking(context.Background(), call.ID, "host")

	require.NoError(t, err, "transcript failures never fail a transition")
	require.NotNil(t, updated.ModeratorMessage)
	assert.NotEmpty(t, *updated.ModeratorMessage)
	assert.True(t, strings.Contains(*updated.ModeratorMessage, "A"))
	transcript.AssertExpectations(t)
}

func TestStartCircleTalking_RestartResetsRotation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	call := f.callWith(t, "A", "B", "C")

	_, err := f.svc.StartCircleTalking(ctx, call.ID, "host")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.AdvanceSpeaker(ctx, call.ID, "host")
	require.NoError(t, err)
	_, err = f.svc.JoinCall(ctx, call.ID, "D")
	require.NoError(t, err)

	updated, err := f.svc.StartCircleTalking(ctx, call.ID, "host")
	require.NoError(t, err)
	assert.Equal(t, "A", *updated.CurrentSpeakerID)

	ps := f.byUser(t, call.ID)
	assert.Equal(t, 3, *ps["D"].SpeakingOrder)
	assert.Equal(t, 0, *ps["A"].SpeakingTimeSeconds)
	assert.Equal(t, []string{"A"}, f.unmuted(t, call.ID))
}

func TestStartCircleTalking_OrderRules(t *testing.T) {
	tests := []struct {
		rule OrderRule
		want []string
	}{
		{OrderByJoin, []string{"carol", "alice", "bob"}},
		{OrderByIdentity, []string{"alice", "bob", "carol"}},
		{OrderByStore, []string{"carol", "alice", "bob"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.rule), func(t *testing.T) {
			f := newFixture(t, Options{OrderRule: tt.rule})
			call := f.callWith(t, "carol", "alice", "bob")

			_, err := f.svc.StartCircleTalking(context.Background(), call.ID, "host")
			require.NoError(t, err)

			ps := f.byUser(t, call.ID)
			for i, id := range tt.want {
				assert.Equal(t, i, *ps[id].SpeakingOrder, id)
			}
		})
	}
}

func TestModeration_ForbiddenRequester(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	call := f.callWith(t, "A", "B")

	_, err := f.svc.StartCircleTalking(ctx, call.ID, "A")
	assertCode(t, err, apperrors.ErrCodeForbidden)

	_, err = f.svc.StartCircleTalking(ctx, call.ID, "host")
	require.NoError(t, err)

	_, err = f.svc.AdvanceSpeaker(ctx, call.ID, "B")
	assertCode(t, err, apperrors.ErrCodeForbidden)

	_, err = f.svc.EndCall(ctx, call.ID, "B")
	assertCode(t, err, apperrors.ErrCodeForbidden)

	// Nothing changed
	current, err := f.svc.GetCall(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", *current.CurrentSpeakerID)
	assert.False(t, current.IsEnded())
}

func TestModeration_AdminMayModerate(t *testing.T) {
	f := newFixture(t, Options{})
	call := f.callWith(t, "A", "B")
	ctx := appctx.WithActor(context.Background(), appctx.Actor{UserID: "moderator", Role: appctx.RoleAdmin})

	_, err := f.svc.StartCircleTalking(ctx, call.ID, "moderator")
	require.NoError(t, err)
	_, err = f.svc.AdvanceSpeaker(ctx, call.ID, "moderator")
	require.NoError(t, err)
	_, err = f.svc.EndCall(ctx, call.ID, "moderator")
	require.NoError(t, err)
}

func TestModeration_CustomAuthorizer(t *testing.T) {
	f := newFixture(t, Options{Authorizer: AllowAll})
	call := f.callWith(t, "A")

	_, err := f.svc.StartCircleTalking(context.Background(), call.ID, "anyone")
	assert.NoError(t, err)
}

func TestEndCall_Terminality(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	call := f.callWith(t, "A", "B")

	_, err := f.svc.StartCircleTalking(ctx, call.ID, "host")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Second)

	ended, err := f.svc.EndCall(ctx, call.ID, "host")
	require.NoError(t, err)
	assert.True(t, ended.IsEnded())
	assert.False(t, ended.CircleTalkingEnabled)
	assert.NotNil(t, ended.EndedAt)
	assert.Nil(t, ended.CurrentSpeakerID)
	assert.Nil(t, ended.SpeakerStartTime)
	assert.Equal(t, 30, *f.byUser(t, call.ID)["A"].SpeakingTimeSeconds)

	_, err = f.svc.JoinCall(ctx, call.ID, "late")
	assertCode(t, err, apperrors.ErrCodeCallEnded)

	_, err = f.svc.EndCall(ctx, call.ID, "host")
	assertCode(t, err, apperrors.ErrCodeCallEnded)

	_, err = f.svc.AdvanceSpeaker(ctx, call.ID, "host")
	assertCode(t, err, apperrors.ErrCodeCircleNotActive)
}

func TestJoinCall(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	call := f.callWith(t)

	p, err := f.svc.JoinCall(ctx, call.ID, "A")
	require.NoError(t, err)
	assert.True(t, p.Muted)
	assert.False(t, p.HandRaised)
	assert.Nil(t, p.SpeakingOrder)

	_, err = f.svc.RaiseHand(ctx, call.ID, "A")
	require.NoError(t, err)

	again, err := f.svc.JoinCall(ctx, call.ID, "A")
	require.NoError(t, err)
	assert.True(t, again.HandRaised, "re-joining must not reset the record")

	_, err = f.svc.JoinCall(ctx, "missing", "A")
	assertCode(t, err, apperrors.ErrCodeCallNotFound)

	_, err = f.svc.JoinCall(ctx, call.ID, "")
	assertCode(t, err, apperrors.ErrCodeMissingField)
}

func TestLeaveCall_Idempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	call := f.callWith(t, "A")

	assert.NoError(t, f.svc.LeaveCall(ctx, call.ID, "A"))
	assert.NoError(t, f.svc.LeaveCall(ctx, call.ID, "A"))
	assert.NoError(t, f.svc.LeaveCall(ctx, call.ID, "never-joined"))
	assert.Empty(t, f.byUser(t, call.ID))
}

func TestRaiseHand_NonMember(t *testing.T) {
	f := newFixture(t, Options{})
	call := f.callWith(t, "A")

	_, err := f.svc.RaiseHand(context.Background(), call.ID, "stranger")
	assertCode(t, err, apperrors.ErrCodeParticipantNotFound)
}

func TestListParticipants_RotationOrder(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	call := f.callWith(t, "C", "A", "B")

	_, err := f.svc.StartCircleTalking(ctx, call.ID, "host")
	require.NoError(t, err)
	_, err = f.svc.JoinCall(ctx, call.ID, "0-late")
	require.NoError(t, err)

	list, err := f.svc.ListParticipants(ctx, call.ID)
	require.NoError(t, err)
	ids := make([]string, len(list))
	for i, p := range list {
		ids[i] = p.UserID
	}
	assert.Equal(t, []string{"C", "A", "B", "0-late"}, ids, "unranked participants go last")
}

func TestEventsPublishedAfterTransitions(t *testing.T) {
	events := new(MockEventPublisher)
	for _, typ := range []domain.CallEventType{
		domain.CallEventJoined,
		domain.CallEventCircleStarted,
		domain.CallEventSpeakerChanged,
		domain.CallEventEnded,
	} {
		typ := typ
		events.On("Publish", mock.Anything, mock.MatchedBy(func(e *domain.CallEvent) bool {
			return e.Type == typ
		})).Return(nil)
	}
	events.On("Publish", mock.Anything, mock.MatchedBy(func(e *domain.CallEvent) bool {
		return e.Type == domain.CallEventLeft
	})).Return(errors.New("redis down"))

	f := newFixture(t, Options{Events: events})
	ctx := context.Background()
	call := f.callWith(t, "A", "B")

	_, err := f.svc.StartCircleTalking(ctx, call.ID, "host")
	require.NoError(t, err)
	_, err = f.svc.AdvanceSpeaker(ctx, call.ID, "host")
	require.NoError(t, err)
	require.NoError(t, f.svc.LeaveCall(ctx, call.ID, "B"))
	_, err = f.svc.EndCall(ctx, call.ID, "host")
	require.NoError(t, err)

	events.AssertExpectations(t)
	events.AssertNumberOfCalls(t, "Publish", 6)
}

func TestGetTranscript(t *testing.T) {
	transcript := new(MockTranscriptRepository)
	f := newFixture(t, Options{Transcript: transcript})
	call := f.callWith(t)

	entries := []*domain.TranscriptEntry{{CallID: call.ID, Kind: domain.TransitionStart}}
	transcript.On("ListByCall", mock.Anything, call.ID, 100).Return(entries, nil)

	got, err := f.svc.GetTranscript(context.Background(), call.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	_, err = f.svc.GetTranscript(context.Background(), "missing", 10)
	assertCode(t, err, apperrors.ErrCodeCallNotFound)
}

func TestGetTranscript_ConfiguredPageSize(t *testing.T) {
	transcript := new(MockTranscriptRepository)
	f := newFixture(t, Options{Transcript: transcript, TranscriptLimit: 25})
	call := f.callWith(t)

	transcript.On("ListByCall", mock.Anything, call.ID, 25).Return([]*domain.TranscriptEntry{}, nil)

	_, err := f.svc.GetTranscript(context.Background(), call.ID, 1000)
	require.NoError(t, err)
	transcript.AssertExpectations(t)
}

func TestRepositoryErrorsMapToDatabaseError(t *testing.T) {
	calls := new(MockCallRepository)
	calls.On("GetByID", mock.Anything, "c1").Return(nil, errors.New("deadline exceeded"))

	svc := NewService(calls, memory.NewParticipantRepository(), &templateAnnouncer{}, Options{})

	_, err := svc.StartCircleTalking(context.Background(), "c1", "host")
	assertCode(t, err, apperrors.ErrCodeDatabase)
	calls.AssertExpectations(t)
}

func TestConcurrentAdvanceKeepsOneSpeaker(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	call := f.callWith(t, "A", "B", "C", "D", "E")

	_, err := f.svc.StartCircleTalking(ctx, call.ID, "host")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AdvanceSpeaker(ctx, call.ID, "host")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 20 advances over 5 participants land back on A
	current, err := f.svc.GetCall(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", *current.CurrentSpeakerID)
	assert.Equal(t, []string{"A"}, f.unmuted(t, call.ID))
}

func TestLockWaitBoundsBlockedTransitions(t *testing.T) {
	locker := NewLocalLocker()
	f := newFixture(t, Options{Locker: locker, LockWait: 20 * time.Millisecond})
	call := f.callWith(t, "A", "B")

	unlock, err := locker.Lock(context.Background(), call.ID)
	require.NoError(t, err)

	_, err = f.svc.StartCircleTalking(context.Background(), call.ID, "host")
	assertCode(t, err, apperrors.ErrCodeLockTimeout)

	unlock()
	_, err = f.svc.StartCircleTalking(context.Background(), call.ID, "host")
	require.NoError(t, err)
}
