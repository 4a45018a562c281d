package moderator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bibleverse-backend/internal/domain"
	"bibleverse-backend/pkg/logger"
	"bibleverse-backend/pkg/metrics"
	"bibleverse-backend/pkg/resilience"
)

// Generator turns a prompt into text
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DefaultTimeout bounds one generation when none is configured
const DefaultTimeout = 5 * time.Second

// Announcer produces moderator messages for circle transitions.
// A nil generator means generation is disabled.
type Announcer struct {
	generator Generator
	timeout   time.Duration
	breaker   *resilience.CircuitBreaker
	metrics   *metrics.Metrics
}

// NewAnnouncer creates an Announcer. breaker may be nil.
func NewAnnouncer(generator Generator, timeout time.Duration, breaker *resilience.CircuitBreaker, m *metrics.Metrics) *Announcer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Announcer{
		generator: generator,
		timeout:   timeout,
		breaker:   breaker,
		metrics:   m,
	}
}

// Announce never fails: disabled, erroring, empty or slow generation yields a template naming the speaker
func (a *Announcer) Announce(ctx context.Context, kind domain.TransitionKind, outgoingID *string, incomingID string) domain.Announcement {
	if a.generator == nil {
		return a.done(kind, domain.Announcement{Message: disabledMessage(kind, incomingID), Source: domain.AnnouncementDisabled})
	}

	genCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var text string
	generate := func(ctx context.Context) error {
		out, err := a.generator.Generate(ctx, prompt(kind, outgoingID, incomingID))
		if err != nil {
			return err
		}
		if out == "" {
			return fmt.Errorf("empty announcement")
		}
		text = out
		return nil
	}

	// Generators that ignore ctx must still not hold the transition past the timeout
	result := make(chan error, 1)
	go func() {
		if a.breaker != nil {
			result <- a.breaker.Execute(genCtx, "announce_"+string(kind), generate)
			return
		}
		result <- generate(genCtx)
	}()

	var err error
	select {
	case err = <-result:
	case <-genCtx.Done():
		err = genCtx.Err()
	}
	if err != nil {
		logger.Warn("Moderator generation failed, using fallback",
			zap.String("kind", string(kind)),
			zap.String("error_type", resilience.ClassifyError(err)),
			zap.Error(err),
		)
		return a.done(kind, domain.Announcement{Message: fallbackMessage(kind, incomingID), Source: domain.AnnouncementFallback})
	}

	return a.done(kind, domain.Announcement{Message: text, Source: domain.AnnouncementGenerated})
}

func (a *Announcer) done(kind domain.TransitionKind, ann domain.Announcement) domain.Announcement {
	a.metrics.RecordAnnouncement(string(kind), string(ann.Source))
	return ann
}

func prompt(kind domain.TransitionKind, outgoingID *string, incomingID string) string {
	if kind == domain.TransitionStart || outgoingID == nil {
		return fmt.Sprintf(`You are a spiritual moderator for a Christian prayer circle.
The circle is just starting.
The first speaker is %s.
Generate a brief, welcoming, one-sentence announcement introducing the first speaker and setting a reverent tone.`, incomingID)
	}
	return fmt.Sprintf(`You are a spiritual moderator for a Christian prayer circle.
The previous speaker was %s.
The next speaker is %s.
Generate a brief, encouraging one-sentence transition. Acknowledge the previous speaker simply and invite the next one.`, *outgoingID, incomingID)
}

func disabledMessage(kind domain.TransitionKind, incomingID string) string {
	if kind == domain.TransitionStart {
		return fmt.Sprintf("Welcome to the circle. %s will start us off.", incomingID)
	}
	return fmt.Sprintf("Thank you. Next up is %s.", incomingID)
}

func fallbackMessage(kind domain.TransitionKind, incomingID string) string {
	if kind == domain.TransitionStart {
		return fmt.Sprintf("Let us begin. %s, you have the floor.", incomingID)
	}
	return fmt.Sprintf("Amen. %s, please proceed.", incomingID)
}
