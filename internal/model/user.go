package model

import "time"

// Roles a user account can carry.
const (
	RolePatient = "PATIENT"
	RoleStaff   = "STAFF"
)

// User represents a portal account. Patients book appointments; staff
// manage the availability calendar.
//
// Fields:
//
//	ID           – UUID primary key.
//	Email        – unique login, stored lower case.
//	PasswordHash – bcrypt hash; never serialised.
//	FullName     – shown on the patient's dashboard.
//	Role         – PATIENT or STAFF.
//	IsActive     – inactive accounts cannot log in.
type User struct {
	ID           string    `json:"id"`         // users.id
	Email        string    `json:"email"`      // users.email
	PasswordHash string    `json:"-"`          // users.password_hash
	FullName     string    `json:"full_name"`  // users.full_name
	Role         string    `json:"role"`       // users.role
	IsActive     bool      `json:"is_active"`  // users.is_active
	CreatedAt    time.Time `json:"created_at"` // users.created_at
	UpdatedAt    time.Time `json:"updated_at"` // users.updated_at
}

// RefreshToken is a stored refresh token. Only the SHA-256 hash of the raw
// token is persisted.
type RefreshToken struct {
	ID        string     // refresh_tokens.id
	UserID    string     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
