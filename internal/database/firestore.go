package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"bibleverse-backend/pkg/logger"
)

// FirestoreConfig selects the Firebase project and service account
type FirestoreConfig struct {
	ProjectID       string
	CredentialsPath string
}

// NewFirestoreClient initializes the Firebase Admin SDK and returns its Firestore client.
// Without a credentials file the SDK falls back to Application Default Credentials.
func NewFirestoreClient(ctx context.Context, cfg *FirestoreConfig) (*firestore.Client, error) {
	var opts []option.ClientOption
	projectID := cfg.ProjectID

	if cfg.CredentialsPath != "" {
		credentials, err := os.ReadFile(cfg.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read Firebase credentials file: %w", err)
		}

		if projectID == "" {
			projectID, err = projectIDFromCredentials(credentials)
			if err != nil {
				return nil, err
			}
		}
		opts = append(opts, option.WithCredentialsJSON(credentials))
	}

	if projectID == "" {
		return nil, fmt.Errorf("firebase project id is required")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Firestore client: %w", err)
	}

	logger.Info("Firebase Admin SDK initialized", zap.String("project_id", projectID))
	return client, nil
}

func projectIDFromCredentials(credentials []byte) (string, error) {
	var creds struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(credentials, &creds); err != nil {
		return "", fmt.Errorf("failed to parse Firebase credentials: %w", err)
	}
	return creds.ProjectID, nil
}
