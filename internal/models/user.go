// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account row in the users table. Password holds the argon2id
// encoded hash once the user is persisted.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}
