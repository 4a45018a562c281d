package call

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibleverse-backend/internal/domain"
)

func TestParseOrderRule(t *testing.T) {
	rule, err := ParseOrderRule("")
	require.NoError(t, err)
	assert.Equal(t, OrderByJoin, rule)

	rule, err = ParseOrderRule("identity")
	require.NoError(t, err)
	assert.Equal(t, OrderByIdentity, rule)

	_, err = ParseOrderRule("random")
	assert.Error(t, err)
}

func TestOrderByJoin_MissingJoinTimeFallsBackToUserID(t *testing.T) {
	joined := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	participants := []*domain.CallParticipant{
		{UserID: "zoe"},
		{UserID: "carol", JoinedAt: joined.Add(time.Minute)},
		{UserID: "adam"},
		{UserID: "bob", JoinedAt: joined},
	}

	got := OrderByJoin.arrange(participants)

	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.UserID)
	}
	assert.Equal(t, []string{"bob", "carol", "adam", "zoe"}, ids)
	assert.Equal(t, "zoe", participants[0].UserID)
}
