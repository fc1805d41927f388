// Package auth handles registration, login and JWT session issuance.
// It supplies the user id every library operation is scoped by.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User is the account a library belongs to.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserStore persists accounts. CreateUser returns ErrEmailTaken when the
// email's uniqueness constraint fires; UserByEmail returns
// ErrInvalidCredentials for unknown emails so callers cannot probe for
// registered addresses.
type UserStore interface {
	CreateUser(ctx context.Context, user User) error
	UserByEmail(ctx context.Context, email string) (User, error)
}

// Service wires password hashing and token issuance over a UserStore.
type Service struct {
	store      UserStore
	secret     string
	tokenTTL   time.Duration
	bcryptCost int
}

func NewService(store UserStore, secret string, tokenTTL time.Duration, bcryptCost int) *Service {
	return &Service{store: store, secret: secret, tokenTTL: tokenTTL, bcryptCost: bcryptCost}
}

// Register creates an account and returns the user with a fresh session
// token.
func (s *Service) Register(ctx context.Context, email, password string) (User, string, error) {
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return User{}, "", err
	}

	user := User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return User{}, "", err
	}

	token, err := GenerateToken(s.secret, user.ID.String(), user.Email, s.tokenTTL)
	if err != nil {
		return User{}, "", err
	}
	return user, token, nil
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (User, string, error) {
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return User{}, "", err
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return User{}, "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.secret, user.ID.String(), user.Email, s.tokenTTL)
	if err != nil {
		return User{}, "", err
	}
	return user, token, nil
}

// Verify parses a bearer token back into the user id it was issued for.
func (s *Service) Verify(tokenStr string) (uuid.UUID, error) {
	claims, err := ParseToken(s.secret, tokenStr)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(claims.Subject)
}
