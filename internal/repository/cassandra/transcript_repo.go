package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"bibleverse-backend/internal/domain"
	"bibleverse-backend/pkg/metrics"
)

// TranscriptSchema creates the call_transcripts table.
// Entries are partitioned per call and clustered by their time-ordered id.
const TranscriptSchema = `
	CREATE TABLE IF NOT EXISTS call_transcripts (
		call_id text,
		entry_id uuid,
		kind text,
		outgoing_speaker_id text,
		incoming_speaker_id text,
		message text,
		fallback boolean,
		created_at timestamp,
		PRIMARY KEY ((call_id), entry_id)
	) WITH CLUSTERING ORDER BY (entry_id ASC)
`

// TranscriptRepository stores moderator transcripts in Cassandra
type TranscriptRepository struct {
	session *gocql.Session
	metrics *metrics.Metrics
}

// NewTranscriptRepository creates a new TranscriptRepository. m may be nil.
func NewTranscriptRepository(session *gocql.Session, m *metrics.Metrics) *TranscriptRepository {
	return &TranscriptRepository{session: session, metrics: m}
}

func (r *TranscriptRepository) observe(operation string, start time.Time, err error) {
	r.metrics.ObserveStoreQuery("cassandra", operation, err, time.Since(start))
}

// EnsureSchema applies TranscriptSchema
func (r *TranscriptRepository) EnsureSchema(ctx context.Context) error {
	if err := r.session.Query(TranscriptSchema).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to create call_transcripts: %w", err)
	}
	return nil
}

// Append inserts a transcript entry
func (r *TranscriptRepository) Append(ctx context.Context, entry *domain.TranscriptEntry) (err error) {
	defer func(start time.Time) { r.observe("append_transcript", start, err) }(time.Now())

	// Version 7 ids sort by creation time, keeping clustering order chronological
	if entry.EntryID == uuid.Nil {
		entry.EntryID = uuid.Must(uuid.NewV7())
	}

	query := `
		INSERT INTO call_transcripts (
			call_id, entry_id, kind, outgoing_speaker_id, incoming_speaker_id,
			message, fallback, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	err = r.session.Query(query,
		entry.CallID,
		gocql.UUID(entry.EntryID),
		string(entry.Kind),
		entry.OutgoingSpeakerID,
		entry.IncomingSpeakerID,
		entry.Message,
		entry.Fallback,
		entry.CreatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to append transcript entry: %w", err)
	}

	return nil
}

// ListByCall returns up to limit entries for a call, oldest first
func (r *TranscriptRepository) ListByCall(ctx context.Context, callID string, limit int) (_ []*domain.TranscriptEntry, err error) {
	defer func(start time.Time) { r.observe("list_transcript", start, err) }(time.Now())

	query := `
		SELECT call_id, entry_id, kind, outgoing_speaker_id, incoming_speaker_id,
		       message, fallback, created_at
		FROM call_transcripts
		WHERE call_id = ?
		LIMIT ?
	`

	iter := r.session.Query(query, callID, limit).WithContext(ctx).Iter()

	entries := make([]*domain.TranscriptEntry, 0)
	for {
		var (
			entry    domain.TranscriptEntry
			entryID  gocql.UUID
			kind     string
			outgoing string
			incoming string
		)
		if !iter.Scan(
			&entry.CallID,
			&entryID,
			&kind,
			&outgoing,
			&incoming,
			&entry.Message,
			&entry.Fallback,
			&entry.CreatedAt,
		) {
			break
		}
		entry.EntryID = uuid.UUID(entryID)
		entry.Kind = domain.TransitionKind(kind)
		entry.OutgoingSpeakerID = optional(outgoing)
		entry.IncomingSpeakerID = optional(incoming)
		entries = append(entries, &entry)
	}

	if err = iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch transcript: %w", err)
	}

	return entries, nil
}

// null text columns scan as ""
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
