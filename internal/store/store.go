package store

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrUserExists = errors.New("user already exists")
)

// Store holds credential records and transcripts.
type Store interface {
	// GetUserByName looks a user up by name, ignoring case. Returns ErrNotFound.
	GetUserByName(ctx context.Context, name string) (*User, error)
	// CreateUser inserts the credential record and an empty transcript.
	// Returns ErrUserExists when the name or user_id is taken.
	CreateUser(ctx context.Context, user *User) error
	AppendInteraction(ctx context.Context, userID string, rec Interaction) error
	GetTranscript(ctx context.Context, userID string) (*Transcript, error)
	Close(ctx context.Context) error
}

// NameKey normalizes a user name for lookups.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
