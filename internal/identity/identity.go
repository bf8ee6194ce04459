// Package identity signs users up, in and out and reports who is signed in.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 6

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnknownUser is returned by a UserStore lookup that finds nothing.
	ErrUnknownUser = errors.New("unknown user")
)

type User struct {
	ID    string
	Email string
}

// Account is a stored user with its password hash.
type Account struct {
	User
	PasswordHash []byte
}

// UserStore persists accounts. CreateAccount reports ErrEmailInUse for a
// taken email and AccountByEmail reports ErrUnknownUser for a missing one.
type UserStore interface {
	CreateAccount(ctx context.Context, a Account) error
	AccountByEmail(ctx context.Context, email string) (Account, error)
}

type Service struct {
	users UserStore
	cost  int

	mu      sync.Mutex
	current *User

	lmu       sync.Mutex
	listeners map[int]func(uid string)
	nextID    int
}

func NewService(users UserStore) *Service {
	return &Service{
		users:     users,
		cost:      bcrypt.DefaultCost,
		listeners: make(map[int]func(string)),
	}
}

// WithCost sets the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	if len(password) < MinPasswordLength {
		return User{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	acct := Account{User: User{ID: uuid.NewString(), Email: email}, PasswordHash: hash}
	if err := s.users.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, ErrEmailInUse) {
			return User{}, ErrEmailInUse
		}
		return User{}, fmt.Errorf("create account: %w", err)
	}
	slog.InfoContext(ctx, "Account created", "uid", acct.ID)
	s.setCurrent(&acct.User)
	return acct.User, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return User{}, ErrInvalidCredentials
	}
	acct, err := s.users.AccountByEmail(ctx, email)
	if errors.Is(err, ErrUnknownUser) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("look up account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	s.setCurrent(&acct.User)
	return acct.User, nil
}

func (s *Service) SignOut(context.Context) error {
	s.setCurrent(nil)
	return nil
}

func (s *Service) Current() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return User{}, false
	}
	return *s.current, true
}

// CurrentUID returns the signed-in user's id, or "".
func (s *Service) CurrentUID() string {
	u, _ := s.Current()
	return u.ID
}

// OnChange registers fn to be called with the new uid ("" on sign-out) after
// every change of signed-in user.
func (s *Service) OnChange(fn func(uid string)) (stop func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()
	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

func (s *Service) setCurrent(u *User) {
	s.mu.Lock()
	prev := ""
	if s.current != nil {
		prev = s.current.ID
	}
	s.current = u
	next := ""
	if u != nil {
		next = u.ID
	}
	s.mu.Unlock()

	if prev == next {
		return
	}
	s.lmu.Lock()
	fns := make([]func(string), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()
	for _, fn := range fns {
		fn(next)
	}
}
