package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mindmate.app/companion/internal/logger"
	"mindmate.app/companion/internal/store"
)

func TestLoginRegistersUnknownName(t *testing.T) {
	s := newTestStore(t)
	svc := NewAuthService(s, logger.Nop())
	ctx := context.Background()

	user, created, err := svc.Login(ctx, "Asha", "p1")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if !created {
		t.Fatal("expected a new user to be created")
	}
	if !strings.HasPrefix(user.UserID, "asha_") || len(user.UserID) != len("asha_")+5 {
		t.Fatalf("unexpected user id %q", user.UserID)
	}
	if user.PasswordHash == "p1" {
		t.Fatal("password must be stored hashed")
	}
	tr, err := s.GetTranscript(ctx, user.UserID)
	if err != nil {
		t.Fatalf("GetTranscript err: %v", err)
	}
	if len(tr.Sessions) != 0 {
		t.Fatal("new user must start with an empty transcript")
	}
}

func TestLoginSameUserReachesSameID(t *testing.T) {
	svc := NewAuthService(newTestStore(t), logger.Nop())
	ctx := context.Background()

	first, _, err := svc.Login(ctx, "asha", "p1")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	second, created, err := svc.Login(ctx, "ASHA", "p1")
	if err != nil {
		t.Fatalf("second Login err: %v", err)
	}
	if created {
		t.Fatal("second login must not create a user")
	}
	if second.UserID != first.UserID {
		t.Fatalf("expected %s, got %s", first.UserID, second.UserID)
	}
}

func TestLoginIncorrectPassword(t *testing.T) {
	s := newTestStore(t)
	svc := NewAuthService(s, logger.Nop())
	ctx := context.Background()

	first, _, err := svc.Login(ctx, "asha", "p1")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	user, created, err := svc.Login(ctx, "asha", "p2")
	if !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword, got %v", err)
	}
	if user != nil || created {
		t.Fatal("no user may be returned for a wrong password")
	}
	got, err := s.GetUserByName(ctx, "asha")
	if err != nil || got.UserID != first.UserID {
		t.Fatalf("credential record must be unchanged: %+v %v", got, err)
	}
}

func TestLoginRequiresNameAndPassword(t *testing.T) {
	svc := NewAuthService(newTestStore(t), logger.Nop())
	for _, c := range [][2]string{{"", "p"}, {"   ", "p"}, {"asha", ""}} {
		if _, _, err := svc.Login(context.Background(), c[0], c[1]); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials for %q/%q, got %v", c[0], c[1], err)
		}
	}
}

// racingStore reports the name as unknown once, as if another request
// registered it between lookup and insert.
type racingStore struct {
	store.Store
	missed bool
}

func (r *racingStore) GetUserByName(ctx context.Context, name string) (*store.User, error) {
	if !r.missed {
		r.missed = true
		return nil, store.ErrNotFound
	}
	return r.Store.GetUserByName(ctx, name)
}

func TestLoginConcurrentRegistrationFallsBackToVerify(t *testing.T) {
	base := newTestStore(t)
	ctx := context.Background()
	winner, _, err := NewAuthService(base, logger.Nop()).Login(ctx, "asha", "p1")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}

	svc := NewAuthService(&racingStore{Store: base}, logger.Nop())
	user, created, err := svc.Login(ctx, "asha", "p1")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if created || user.UserID != winner.UserID {
		t.Fatalf("expected existing user %s, got %+v created=%v", winner.UserID, user, created)
	}

	_, _, err = NewAuthService(&racingStore{Store: base}, logger.Nop()).Login(ctx, "asha", "p2")
	if !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword after race, got %v", err)
	}
}
