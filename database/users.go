package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserService maps sign-in emails onto stable owner ids.
type UserService struct {
	db *sql.DB
}

func NewUserService(db *sql.DB) *UserService {
	return &UserService{db: db}
}

// EnsureUser returns the id of the user with email, creating the user on
// first sign-in.
func (s *UserService) EnsureUser(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errors.New("email is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, "SELECT id FROM users WHERE email = ?", email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx, "INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)",
			id, email, time.Now().UTC().Format(timestampLayout))
		if err != nil {
			return "", fmt.Errorf("failed to insert user: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("failed to query user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// Email returns the email of user id.
func (s *UserService) Email(ctx context.Context, id string) (string, error) {
	var email string
	err := s.db.QueryRowContext(ctx, "SELECT email FROM users WHERE id = ?", id).Scan(&email)
	if err != nil {
		return "", fmt.Errorf("failed to query user: %w", err)
	}
	return email, nil
}
