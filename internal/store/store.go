// Package store keeps a local history of dictation sessions, their
// transcripts and generated documents in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Session is one capture session
type Session struct {
	ID           string
	Mode         string
	State        string
	StopReason   string
	MimeType     string
	EncodedBytes int64
	Duration     time.Duration
	Error        string
	StartedAt    time.Time
	EndedAt      *time.Time
}

// Transcript is the text produced for a session
type Transcript struct {
	SessionID  string
	Text       string
	Provider   string
	Language   string
	Confidence *float64
	Manual     bool
	CreatedAt  time.Time
}

// Document is a generated document
type Document struct {
	ID        string
	SessionID string
	Type      string
	Text      string
	Provider  string
	Model     string
	Redacted  bool
	CreatedAt time.Time
}

// Store wraps the history database
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default database path
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "Application Support", "EchoDoc", "history.sqlite")
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	state TEXT NOT NULL,
	stopReason TEXT,
	mimeType TEXT,
	encodedBytes INTEGER NOT NULL DEFAULT 0,
	durationMs INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	startedAt REAL NOT NULL,
	endedAt REAL
);

CREATE TABLE IF NOT EXISTS transcripts (
	sessionId TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
	text TEXT NOT NULL,
	provider TEXT,
	language TEXT,
	confidence REAL,
	manual INTEGER NOT NULL DEFAULT 0,
	createdAt REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	sessionId TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	text TEXT NOT NULL,
	provider TEXT,
	model TEXT,
	redacted INTEGER NOT NULL DEFAULT 0,
	createdAt REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_startedAt ON sessions(startedAt);
CREATE INDEX IF NOT EXISTS idx_documents_sessionId ON documents(sessionId);
`

// Open opens or creates the database at path. ":memory:" opens a private
// in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession inserts or updates a session
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		return errors.New("session id is required")
	}
	var endedAt sql.NullFloat64
	if sess.EndedAt != nil {
		endedAt = sql.NullFloat64{Float64: unixFromTime(*sess.EndedAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, mode, state, stopReason, mimeType, encodedBytes, durationMs, error, startedAt, endedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			stopReason = excluded.stopReason,
			mimeType = excluded.mimeType,
			encodedBytes = excluded.encodedBytes,
			durationMs = excluded.durationMs,
			error = excluded.error,
			endedAt = excluded.endedAt
	`, sess.ID, sess.Mode, sess.State, sess.StopReason, sess.MimeType, sess.EncodedBytes,
		sess.Duration.Milliseconds(), sess.Error, unixFromTime(sess.StartedAt), endedAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SaveTranscript stores the transcript of a session, replacing any previous one
func (s *Store) SaveTranscript(ctx context.Context, tr Transcript) error {
	var confidence sql.NullFloat64
	if tr.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *tr.Confidence, Valid: true}
	}
	createdAt := tr.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (sessionId, text, provider, language, confidence, manual, createdAt)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sessionId) DO UPDATE SET
			text = excluded.text,
			provider = excluded.provider,
			language = excluded.language,
			confidence = excluded.confidence,
			manual = excluded.manual,
			createdAt = excluded.createdAt
	`, tr.SessionID, tr.Text, tr.Provider, tr.Language, confidence, tr.Manual, unixFromTime(createdAt))
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// SaveDocument stores a generated document and returns its id
func (s *Store) SaveDocument(ctx context.Context, doc Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, sessionId, type, text, provider, model, redacted, createdAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.SessionID, doc.Type, doc.Text, doc.Provider, doc.Model, doc.Redacted, unixFromTime(createdAt))
	if err != nil {
		return "", fmt.Errorf("save document: %w", err)
	}
	return doc.ID, nil
}

// RecentSessions returns up to limit sessions, newest first
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, state, stopReason, mimeType, encodedBytes, durationMs, error, startedAt, endedAt
		FROM sessions
		ORDER BY startedAt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var stopReason, mimeType, errText sql.NullString
		var durationMs int64
		var startedAt float64
		var endedAt sql.NullFloat64
		if err := rows.Scan(&sess.ID, &sess.Mode, &sess.State, &stopReason, &mimeType,
			&sess.EncodedBytes, &durationMs, &errText, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.StopReason = stopReason.String
		sess.MimeType = mimeType.String
		sess.Error = errText.String
		sess.Duration = time.Duration(durationMs) * time.Millisecond
		sess.StartedAt = timeFromUnix(startedAt)
		if endedAt.Valid {
			t := timeFromUnix(endedAt.Float64)
			sess.EndedAt = &t
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// TranscriptFor returns the transcript of a session, or nil if there is none
func (s *Store) TranscriptFor(ctx context.Context, sessionID string) (*Transcript, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT sessionId, text, provider, language, confidence, manual, createdAt
		FROM transcripts
		WHERE sessionId = ?
	`, sessionID)

	var tr Transcript
	var provider, language sql.NullString
	var confidence sql.NullFloat64
	var createdAt float64
	if err := row.Scan(&tr.SessionID, &tr.Text, &provider, &language, &confidence, &tr.Manual, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	tr.Provider = provider.String
	tr.Language = language.String
	if confidence.Valid {
		c := confidence.Float64
		tr.Confidence = &c
	}
	tr.CreatedAt = timeFromUnix(createdAt)
	return &tr, nil
}

// DocumentsFor returns the documents of a session in creation order
func (s *Store) DocumentsFor(ctx context.Context, sessionID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sessionId, type, text, provider, model, redacted, createdAt
		FROM documents
		WHERE sessionId = ?
		ORDER BY createdAt ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var provider, model sql.NullString
		var createdAt float64
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Type, &d.Text, &provider, &model, &d.Redacted, &createdAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Provider = provider.String
		d.Model = model.String
		d.CreatedAt = timeFromUnix(createdAt)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Prune deletes sessions started before cutoff together with their
// transcripts and documents. It returns the number of sessions removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE startedAt < ?`, unixFromTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
