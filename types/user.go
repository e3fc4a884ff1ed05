package types

import "time"

// User represents an account in the system.
// It carries identity, credential, and session metadata.
type User struct {
	// ID is the unique identifier of the user, generated at creation.
	ID string `json:"id" db:"id"`

	// Email uniquely identifies the user regardless of the
	// authentication method used to create the account. Stored lowercase.
	Email string `json:"email" db:"email"`

	// Name is the user's display name. Optional.
	Name string `json:"name" db:"name"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// Empty for OAuth-only accounts. Never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// OAuthID is the external provider's user id, set once the account
	// is created via or linked to Google OAuth.
	OAuthID string `json:"-" db:"oauth_id"`

	// IsEmailVerified becomes true after a successful OTP verification
	// or a trusted OAuth identity.
	IsEmailVerified bool `json:"is_email_verified" db:"is_email_verified"`

	// OTPCode and OTPExpiresAt hold the single outstanding one-time
	// code challenge. Reissuing replaces both. Never serialized.
	OTPCode      string     `json:"-" db:"otp_code"`
	OTPExpiresAt *time.Time `json:"-" db:"otp_expires_at"`

	// TokenVersion is a monotonically increasing revocation counter.
	// Every issued session token embeds the version at mint time;
	// bumping it invalidates all previously issued tokens.
	TokenVersion int64 `json:"-" db:"token_version"`

	// IsActive flags session presence: true on successful login,
	// false after logout.
	IsActive bool `json:"is_active" db:"is_active"`

	// CreatedAt is when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// LastLoginAt is the timestamp of the most recent successful login.
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

// HasPassword reports whether password login is possible for the account.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Summary is the outward-facing projection of a User returned by
// authentication endpoints.
type Summary struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	IsEmailVerified bool       `json:"is_email_verified"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
}

// Summary projects the user into its API representation.
func (u *User) Summary() Summary {
	return Summary{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		IsEmailVerified: u.IsEmailVerified,
		IsActive:        u.IsActive,
		CreatedAt:       u.CreatedAt,
		LastLoginAt:     u.LastLoginAt,
	}
}

// LoginRecord is one entry in a user's login history.
type LoginRecord struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	LoginAt   time.Time `json:"login_at" db:"login_at"`
	IPAddress string    `json:"ip_address" db:"ip_address"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
}
