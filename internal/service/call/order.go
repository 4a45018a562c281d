package call

import (
	"fmt"
	"sort"

	"bibleverse-backend/internal/domain"
)

// OrderRule decides how speaking orders are assigned when circle talking starts
type OrderRule string

const (
	// OrderByJoin ranks by JoinedAt, then user id. Participants without a
	// join time go after timed ones.
	OrderByJoin OrderRule = "join"
	// OrderByIdentity ranks by user id
	OrderByIdentity OrderRule = "identity"
	// OrderByStore keeps whatever order the participant store enumerates
	OrderByStore OrderRule = "store"
)

// ParseOrderRule validates a configured rule; empty means OrderByJoin
func ParseOrderRule(s string) (OrderRule, error) {
	switch OrderRule(s) {
	case "":
		return OrderByJoin, nil
	case OrderByJoin, OrderByIdentity, OrderByStore:
		return OrderRule(s), nil
	}
	return "", fmt.Errorf("invalid order rule %q", s)
}

// arrange returns a new slice in the order speaking ranks are handed out
func (r OrderRule) arrange(participants []*domain.CallParticipant) []*domain.CallParticipant {
	out := make([]*domain.CallParticipant, len(participants))
	copy(out, participants)

	switch r {
	case OrderByStore:
	case OrderByIdentity:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].UserID < out[j].UserID
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i].JoinedAt, out[j].JoinedAt
			switch {
			case !a.IsZero() && b.IsZero():
				return true
			case a.IsZero() && !b.IsZero():
				return false
			case !a.Equal(b):
				return a.Before(b)
			}
			return out[i].UserID < out[j].UserID
		})
	}
	return out
}

// rotation sorts participants by speaking order. Participants without an
// order go after ranked ones; user id breaks ties.
func rotation(participants []*domain.CallParticipant) []*domain.CallParticipant {
	out := make([]*domain.CallParticipant, len(participants))
	copy(out, participants)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].SpeakingOrder, out[j].SpeakingOrder
		switch {
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		case a != nil && b != nil && *a != *b:
			return *a < *b
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// indexOf returns the position of userID in participants, or -1
func indexOf(participants []*domain.CallParticipant, userID string) int {
	for i, p := range participants {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}
