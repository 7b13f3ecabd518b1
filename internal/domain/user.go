package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserStatus is the durable presence flag stored on the user row
type UserStatus string

const (
	UserStatusOnline  UserStatus = "online"
	UserStatusOffline UserStatus = "offline"
)

// User is the directory view of a user, maps to CockroachDB users table
type User struct {
	UserID      uuid.UUID  `json:"userId" db:"user_id"`
	Username    string     `json:"username" db:"username"`
	DisplayName string     `json:"name" db:"display_name"`
	AvatarURL   *string    `json:"avatarUrl,omitempty" db:"avatar_url"`
	Status      UserStatus `json:"status" db:"status"`
	LastSeen    *time.Time `json:"lastSeen,omitempty" db:"last_seen"`
}
