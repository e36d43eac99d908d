package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/isdelr/signaldesk-be/internal/apperr"
	"github.com/isdelr/signaldesk-be/internal/auth"
	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/isdelr/signaldesk-be/internal/store"
	"github.com/rs/zerolog/log"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 6
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	Register(ctx context.Context, input RegisterInput) (models.User, error)
	Login(ctx context.Context, username, password string) (LoginResult, error)
	GetUserByID(ctx context.Context, id string) (models.User, error)
}

// RegisterInput carries a self-service registration.
type RegisterInput struct {
	Username    string
	Password    string
	DisplayName string
}

// LoginResult bundles the token and user returned after a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      models.User
}

// UserService provides registration, login and profile lookups.
type UserService struct {
	users  store.UserStore
	hasher *auth.Hasher
	tokens *auth.TokenIssuer
}

// NewUserService creates a new UserService.
func NewUserService(users store.UserStore, hasher *auth.Hasher, tokens *auth.TokenIssuer) *UserService {
	return &UserService{users: users, hasher: hasher, tokens: tokens}
}

// Register creates a new account with the "user" role. Handle uniqueness is
// checked before insert; the store's unique constraint covers the race.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	username := strings.TrimSpace(input.Username)
	if err := validateCredentials(username, input.Password); err != nil {
		return models.User{}, err
	}

	return s.create(ctx, username, input.Password, strings.TrimSpace(input.DisplayName), models.RoleUser)
}

// EnsureUser creates a user with the given role unless the handle is
// already taken. It reports whether a user was created. Used to bootstrap
// admin and callmaker accounts from configuration.
func (s *UserService) EnsureUser(ctx context.Context, username, password, displayName string, role models.Role) (models.User, bool, error) {
	if !role.Valid() {
		return models.User{}, false, fmt.Errorf("%w: unknown role %q", apperr.ErrInvalidInput, role)
	}
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return models.User{}, false, err
	}
	existing, err := s.users.FindByHandle(ctx, username)
	if err == nil {
		if existing.Role != role {
			log.Warn().Str("username", username).Str("role", string(existing.Role)).Str("configured_role", string(role)).
				Msg("Bootstrap user exists with a different role; leaving it unchanged")
		}
		return existing, false, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return models.User{}, false, err
	}
	user, err := s.create(ctx, username, password, strings.TrimSpace(displayName), role)
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

func (s *UserService) create(ctx context.Context, username, password, displayName string, role models.Role) (models.User, error) {
	_, err := s.users.FindByHandle(ctx, username)
	switch {
	case err == nil:
		return models.User{}, fmt.Errorf("%w: username already exists", apperr.ErrConflict)
	case !errors.Is(err, apperr.ErrNotFound):
		return models.User{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.users.Create(ctx, models.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return models.User{}, fmt.Errorf("%w: username already exists", apperr.ErrConflict)
		}
		return models.User{}, err
	}

	// Return user without password hash
	user.PasswordHash = ""
	return user, nil
}

// Login verifies credentials and mints an access token.
func (s *UserService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	user, err := s.users.FindByHandle(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return LoginResult{}, fmt.Errorf("%w: user not found", apperr.ErrNotFound)
		}
		return LoginResult{}, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return LoginResult{}, fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthenticated)
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return LoginResult{}, err
	}

	// Don't send the password hash to the client
	user.PasswordHash = ""
	return LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id string) (models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		return fmt.Errorf("%w: username must be %d-%d characters", apperr.ErrInvalidInput, minUsernameLen, maxUsernameLen)
	}
	if strings.IndexFunc(username, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: username must not contain whitespace", apperr.ErrInvalidInput)
	}
	return nil
}

func validateCredentials(username, password string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", apperr.ErrInvalidInput, minPasswordLen)
	}
	return nil
}
