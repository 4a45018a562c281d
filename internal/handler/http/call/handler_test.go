package call

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibleverse-backend/internal/domain"
	"bibleverse-backend/internal/repository/memory"
	"bibleverse-backend/internal/service/call"
	"bibleverse-backend/internal/service/moderator"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter() *gin.Engine {
	svc := call.NewService(
		memory.NewCallRepository(),
		memory.NewParticipantRepository(),
		moderator.NewAnnouncer(nil, 0, nil, nil),
		call.Options{Transcript: memory.NewTranscriptRepository()},
	)

	router := gin.New()
	v1 := router.Group("/v1")
	// Stands in for AuthMiddleware
	v1.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set("user_id", id)
		}
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(v1)
	return router
}

func do(t *testing.T, router http.Handler, method, path, user string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func createCall(t *testing.T, router http.Handler, user string) *domain.Call {
	t.Helper()
	code, env := do(t, router, http.MethodPost, "/v1/calls", user, CreateCallRequest{Scope: "room", RefID: "room-1", Mode: "audio"})
	require.Equal(t, http.StatusCreated, code)

	var created domain.Call
	require.NoError(t, json.Unmarshal(env.Data, &created))
	return &created
}

func TestCreateCall(t *testing.T) {
	router := newRouter()

	created := createCall(t, router, "host")

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "host", created.StartedBy)
	assert.Equal(t, domain.CallStatusActive, created.Status)
	assert.False(t, created.CircleTalkingEnabled)
}

func TestCreateCall_Validation(t *testing.T) {
	router := newRouter()

	code, env := do(t, router, http.MethodPost, "/v1/calls", "host", CreateCallRequest{Scope: "galaxy", RefID: "r", Mode: "audio"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	code, _ = do(t, router, http.MethodPost, "/v1/calls", "", CreateCallRequest{Scope: "room", RefID: "r", Mode: "audio"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCircleTalkingFlow(t *testing.T) {
	router := newRouter()
	created := createCall(t, router, "host")
	base := "/v1/calls/" + created.ID

	for _, user := range []string{"alice", "bob"} {
		code, _ := do(t, router, http.MethodPost, base+"/join", user, nil)
		require.Equal(t, http.StatusOK, code)
	}

	code, env := do(t, router, http.MethodPost, base+"/circle-talking/start", "alice", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	code, env = do(t, router, http.MethodPost, base+"/circle-talking/start", "host", nil)
	require.Equal(t, http.StatusOK, code)
	var started domain.Call
	require.NoError(t, json.Unmarshal(env.Data, &started))
	require.NotNil(t, started.CurrentSpeakerID)
	assert.Equal(t, "alice", *started.CurrentSpeakerID)
	assert.Equal(t, "Welcome to the circle. alice will start us off.", *started.ModeratorMessage)

	code, env = do(t, router, http.MethodPost, base+"/circle-talking/next", "host", nil)
	require.Equal(t, http.StatusOK, code)
	var advanced domain.Call
	require.NoError(t, json.Unmarshal(env.Data, &advanced))
	assert.Equal(t, "bob", *advanced.CurrentSpeakerID)

	code, env = do(t, router, http.MethodGet, base+"/transcript", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var transcript struct {
		Entries []domain.TranscriptEntry `json:"entries"`
		Count   int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &transcript))
	assert.Equal(t, 2, transcript.Count)
	assert.Equal(t, domain.TransitionStart, transcript.Entries[0].Kind)

	code, _ = do(t, router, http.MethodPost, base+"/end", "host", nil)
	require.Equal(t, http.StatusOK, code)

	code, env = do(t, router, http.MethodPost, base+"/circle-talking/next", "host", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CALL_ENDED", env.Error.Code)
}

func TestParticipantsAndHands(t *testing.T) {
	router := newRouter()
	created := createCall(t, router, "host")
	base := "/v1/calls/" + created.ID

	do(t, router, http.MethodPost, base+"/join", "alice", nil)

	code, env := do(t, router, http.MethodPost, base+"/raise-hand", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var p domain.CallParticipant
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.True(t, p.HandRaised)

	code, env = do(t, router, http.MethodPost, base+"/raise-hand", "carol", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "PARTICIPANT_NOT_FOUND", env.Error.Code)

	code, _ = do(t, router, http.MethodPost, base+"/leave", "alice", nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = do(t, router, http.MethodGet, base+"/participants", "host", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"participants":[],"count":0}`, string(env.Data))
}

func TestGetCall_NotFound(t *testing.T) {
	router := newRouter()

	code, env := do(t, router, http.MethodGet, "/v1/calls/missing", "alice", nil)

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "CALL_NOT_FOUND", env.Error.Code)
	assert.False(t, env.Success)
}

func TestGetTranscript_BadLimit(t *testing.T) {
	router := newRouter()
	created := createCall(t, router, "host")

	code, _ := do(t, router, http.MethodGet, "/v1/calls/"+created.ID+"/transcript?limit=abc", "host", nil)

	assert.Equal(t, http.StatusBadRequest, code)
}
