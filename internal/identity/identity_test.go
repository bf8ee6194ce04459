package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"receipts/internal/storage"
)

func newService() *Service {
	return NewService(NewMemoryUsers()).WithCost(bcrypt.MinCost)
}

func TestSignUpValidation(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"bad email", "not-an-email", "secret1", ErrInvalidEmail},
		{"display name", "Bob <bob@example.com>", "secret1", ErrInvalidEmail},
		{"short password", "bob@example.com", "12345", ErrWeakPassword},
		{"ok", "bob@example.com", "123456", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newService().SignUp(ctx, tc.email, tc.password)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSignUpSignInSignOutEvents(t *testing.T) {
	ctx := context.Background()
	s := newService()
	var events []string
	stop := s.OnChange(func(uid string) { events = append(events, uid) })
	defer stop()

	u, err := s.SignUp(ctx, "Alice@Example.com", "hunter22")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if s.CurrentUID() != u.ID || u.Email != "alice@example.com" {
		t.Fatalf("sign-up did not sign in: %+v", u)
	}
	if _, err := s.SignUp(ctx, "alice@example.com", "another1"); !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("want ErrEmailInUse, got %v", err)
	}

	s.SignOut(ctx)
	s.SignOut(ctx)
	if _, ok := s.Current(); ok {
		t.Fatalf("still signed in")
	}

	if _, err := s.SignIn(ctx, "alice@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.SignIn(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: want ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.SignIn(ctx, "alice@example.com", "hunter22"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	s.SignIn(ctx, "alice@example.com", "hunter22")

	want := []string{u.ID, "", u.ID}
	if len(events) != len(want) {
		t.Fatalf("events = %q, want %q", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %q, want %q", events, want)
		}
	}
}

func TestSQLiteUsers(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer repo.Close()

	s := NewService(NewSQLiteUsers(repo)).WithCost(bcrypt.MinCost)
	if _, err := s.SignUp(ctx, "carol@example.com", "sesame1"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if _, err := s.SignUp(ctx, "carol@example.com", "sesame1"); !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("want ErrEmailInUse, got %v", err)
	}
	if _, err := s.SignIn(ctx, "carol@example.com", "sesame1"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
}
