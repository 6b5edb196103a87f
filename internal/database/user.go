// internal/database/user.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pickuphq/pickup/internal/auth"
	"github.com/pickuphq/pickup/internal/models"
)

// CreateUser hashes the plaintext password on user.Password and inserts the
// account row. New accounts start at rating 0.
func CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}

	hash, err := auth.HashPassword(user.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash

	q := `INSERT INTO users (id, username, password, rating) VALUES ($1, $2, $3, $4)`
	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, user.ID, user.Username, user.Password, user.Rating)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByUsername loads an account by its unique username.
func GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	q := `SELECT id, username, password, rating, created_at FROM users WHERE username = $1`
	err := DB.QueryRow(ctx, q, username).Scan(&u.ID, &u.Username, &u.Password, &u.Rating, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByID loads an account by id.
func GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	q := `SELECT id, username, password, rating, created_at FROM users WHERE id = $1`
	err := DB.QueryRow(ctx, q, id).Scan(&u.ID, &u.Username, &u.Password, &u.Rating, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
