package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectIDFromCredentials(t *testing.T) {
	id, err := projectIDFromCredentials([]byte(`{"type":"service_account","project_id":"bibleverse-prod"}`))
	require.NoError(t, err)
	assert.Equal(t, "bibleverse-prod", id)

	_, err = projectIDFromCredentials([]byte(`not json`))
	assert.Error(t, err)
}

func TestNewFirestoreClient_MissingCredentialsFile(t *testing.T) {
	_, err := NewFirestoreClient(context.Background(), &FirestoreConfig{
		ProjectID:       "p",
		CredentialsPath: "/nonexistent/creds.json",
	})
	assert.Error(t, err)
}

func TestNewFirestoreClient_RequiresProject(t *testing.T) {
	_, err := NewFirestoreClient(context.Background(), &FirestoreConfig{})
	assert.Error(t, err)
}
