package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/signaldesk-be/internal/apperr"
	"github.com/isdelr/signaldesk-be/internal/models"
)

// UserRepository implements UserStore.
type UserRepository struct {
	s *Store
}

const userColumns = `id, username, display_name, password_hash, role, created_at`

// FindByHandle retrieves a user by login name, including the password hash.
func (r *UserRepository) FindByHandle(ctx context.Context, username string) (models.User, error) {
	row := r.s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, classify("find user by handle", err)
	}
	return user, nil
}

// FindByID retrieves a user by ID, including the password hash.
func (r *UserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	row := r.s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, classify("find user by id", err)
	}
	return user, nil
}

// Create inserts a user. A blank ID is generated and a blank role defaults
// to RoleUser; any other unknown role is rejected.
func (r *UserRepository) Create(ctx context.Context, user models.User) (models.User, error) {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" || user.PasswordHash == "" {
		return models.User{}, fmt.Errorf("create user: %w: username and password hash are required", apperr.ErrInvalidInput)
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if !user.Role.Valid() {
		return models.User{}, fmt.Errorf("create user: %w: unknown role %q", apperr.ErrInvalidInput, user.Role)
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.CreatedAt = timestamp(user.CreatedAt)

	_, err := r.s.exec(ctx,
		`INSERT INTO users (id, username, display_name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, nullString(user.DisplayName), user.PasswordHash, string(user.Role), user.CreatedAt,
	)
	if err != nil {
		return models.User{}, classify("create user", err)
	}
	return user, nil
}

func scanUser(scanner interface{ Scan(...any) error }) (models.User, error) {
	var (
		user        models.User
		displayName sql.NullString
		role        string
	)
	if err := scanner.Scan(&user.ID, &user.Username, &displayName, &user.PasswordHash, &role, &user.CreatedAt); err != nil {
		return models.User{}, err
	}
	user.DisplayName = displayName.String
	user.Role = models.Role(role)
	return user, nil
}
