package types

import "time"

// User represents an account in the system.
// It contains identity and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID string `json:"id" db:"id" bson:"_id"`

	// Name is the user's display name.
	Name string `json:"name" db:"name" bson:"name"`

	// Email is the user's email address. It is unique across all users
	// and stored lower-cased.
	Email string `json:"email" db:"email" bson:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash" bson:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at" bson:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}
