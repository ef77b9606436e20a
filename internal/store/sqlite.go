package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	if dataSourceName == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close(_ context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        user_id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        name_key TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS transcripts (
        user_id TEXT PRIMARY KEY,
        FOREIGN KEY (user_id) REFERENCES users (user_id)
    );

    CREATE TABLE IF NOT EXISTS interactions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id TEXT NOT NULL,
        input TEXT NOT NULL,
        emotion TEXT NOT NULL,
        analysis_json TEXT, -- NULL when the analyzer output did not parse
        response TEXT NOT NULL,
        error_kind TEXT,
        failed_stages TEXT, -- comma separated stage:kind pairs
        escalated BOOLEAN DEFAULT FALSE,
        timestamp DATETIME NOT NULL,
        FOREIGN KEY (user_id) REFERENCES transcripts (user_id)
    );

    CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions (user_id, id);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods
func (s *SQLiteStore) GetUserByName(ctx context.Context, name string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, "SELECT user_id, name, name_key, password_hash, created_at FROM users WHERE name_key = ?", NameKey(name)).
		Scan(&user.UserID, &user.Name, &user.NameKey, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.NameKey = NameKey(user.Name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin user insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "INSERT INTO users (user_id, name, name_key, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		user.UserID, user.Name, user.NameKey, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	if _, err = tx.ExecContext(ctx, "INSERT INTO transcripts (user_id) VALUES (?)", user.UserID); err != nil {
		return fmt.Errorf("failed to insert transcript: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user insert: %w", err)
	}
	return nil
}

// Transcript methods
func (s *SQLiteStore) AppendInteraction(ctx context.Context, userID string, rec Interaction) error {
	var analysisJSON sql.NullString
	if rec.Analysis != nil {
		b, err := json.Marshal(rec.Analysis)
		if err != nil {
			return fmt.Errorf("failed to marshal analysis: %w", err)
		}
		analysisJSON = sql.NullString{String: string(b), Valid: true}
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
        INSERT INTO interactions (user_id, input, emotion, analysis_json, response, error_kind, failed_stages, escalated, timestamp)
        SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
        WHERE EXISTS (SELECT 1 FROM transcripts WHERE user_id = ?)`,
		userID, rec.Input, rec.Emotion, analysisJSON, rec.Response, rec.ErrorKind, strings.Join(rec.FailedStages, ","), rec.Escalated, rec.Timestamp, userID)
	if err != nil {
		return fmt.Errorf("failed to execute interaction insert: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetTranscript(ctx context.Context, userID string) (*Transcript, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM transcripts WHERE user_id = ?", userID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT input, emotion, analysis_json, response, error_kind, failed_stages, escalated, timestamp
        FROM interactions
        WHERE user_id = ?
        ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	transcript := &Transcript{UserID: userID, Sessions: []Interaction{}}
	for rows.Next() {
		var rec Interaction
		var analysisJSON, errorKind, failedStages sql.NullString
		if err := rows.Scan(&rec.Input, &rec.Emotion, &analysisJSON, &rec.Response, &errorKind, &failedStages, &rec.Escalated, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan interaction row: %w", err)
		}
		if analysisJSON.Valid && analysisJSON.String != "" {
			var a Analysis
			if err := json.Unmarshal([]byte(analysisJSON.String), &a); err != nil {
				return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
			}
			rec.Analysis = &a
		}
		rec.ErrorKind = errorKind.String
		if failedStages.String != "" {
			rec.FailedStages = strings.Split(failedStages.String, ",")
		}
		transcript.Sessions = append(transcript.Sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interactions: %w", err)
	}
	return transcript, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
