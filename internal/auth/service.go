package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service registers users and issues access tokens.
type Service struct {
	users      UserRepository
	secret     string
	ttlMinutes int
}

// NewService creates a Service signing tokens with secret.
func NewService(users UserRepository, secret string, ttlMinutes int) *Service {
	return &Service{users: users, secret: secret, ttlMinutes: ttlMinutes}
}

// Registration is the input to Register.
type Registration struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Validate checks the registration fields.
func (r *Registration) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	r.Name = strings.TrimSpace(r.Name)

	if !IsValidUsername(r.Username) {
		return fmt.Errorf("%w: username must be 1-64 letters, digits, dots, hyphens or underscores", ErrInvalidUser)
	}
	if len(r.Password) < minPasswordLength || len(r.Password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be %d-%d characters", ErrInvalidUser, minPasswordLength, maxPasswordLength)
	}
	if r.Name == "" {
		r.Name = r.Username
	}
	if len(r.Name) > maxDisplayNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidUser, maxDisplayNameLength)
	}
	return nil
}

// Register creates an account. Returns ErrUsernameExists for a taken name.
func (s *Service) Register(ctx context.Context, reg Registration) (*User, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	hash, err := HashPassword(reg.Password)
	if err != nil {
		return nil, err
	}

	user := &User{Username: reg.Username, Name: reg.Name, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and returns a signed token with the user.
// Unknown usernames return ErrUserNotFound and wrong passwords
// ErrInvalidCredentials; the dashboard shows them differently.
func (s *Service) Login(ctx context.Context, username, password string) (string, *User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return "", nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateAccessToken(user, s.secret, s.ttlMinutes)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Registered reports whether at least one account exists.
func (s *Service) Registered(ctx context.Context) (bool, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Validate parses a token issued by Login.
func (s *Service) Validate(token string) (*CustomClaims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}
	claims, err := ParseToken(token, s.secret)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// IsAuthError reports whether err should be answered as an authentication
// failure rather than a server error.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrInvalidCredentials)
}
