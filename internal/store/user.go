package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/codebuddy/apiserver/types"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	uniqueViolation   = "23505"
	emailConstraint   = "users_email_key"
	oauthIDConstraint = "users_oauth_id_key"
	userSelectColumns = `id, email, name, password_hash, oauth_id, is_email_verified, otp_code, otp_expires_at, token_version, is_active, created_at, last_login_at`
)

// UserRepository handles persistence for users and their login history.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `
		SELECT ` + userSelectColumns + `
		FROM users
		WHERE id = $1`
	return r.queryUser(ctx, query, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userSelectColumns + `
		FROM users
		WHERE LOWER(email) = LOWER($1)`
	return r.queryUser(ctx, query, email)
}

func (r *UserRepository) GetByOAuthID(ctx context.Context, oauthID string) (types.User, error) {
	const query = `
		SELECT ` + userSelectColumns + `
		FROM users
		WHERE oauth_id = $1`
	return r.queryUser(ctx, query, oauthID)
}

// Create inserts a new user, assigning an id and creation time.
// Duplicate email or OAuth id map to the matching sentinel errors.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now()

	const query = `
		INSERT INTO users (id, email, name, password_hash, oauth_id, is_email_verified, otp_code, otp_expires_at, token_version, is_active, created_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		nullString(user.OAuthID),
		user.IsEmailVerified,
		user.OTPCode,
		user.OTPExpiresAt,
		user.TokenVersion,
		user.IsActive,
		user.CreatedAt,
	)
	if err != nil {
		return types.User{}, constraintError(err)
	}
	return user, nil
}

// Update persists the identity fields of the record. The OTP challenge
// has its own replace/clear operations and the token version only moves
// through the increment operations, so neither can be clobbered here.
// Callers read and modify the user in the same request; concurrent
// writers are last-writer-wins.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	const query = `
		UPDATE users
		SET email = LOWER($1),
			name = $2,
			password_hash = $3,
			oauth_id = $4,
			is_email_verified = $5,
			is_active = $6,
			last_login_at = $7
		WHERE id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Email,
		user.Name,
		user.PasswordHash,
		nullString(user.OAuthID),
		user.IsEmailVerified,
		user.IsActive,
		user.LastLoginAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, constraintError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// SetOTP replaces the outstanding challenge, so at most one exists per user.
func (r *UserRepository) SetOTP(ctx context.Context, userID, code string, expiresAt time.Time) error {
	const query = `
		UPDATE users
		SET otp_code = $1, otp_expires_at = $2
		WHERE id = $3`
	return r.execOnUser(ctx, query, code, expiresAt, userID)
}

// ClearOTP removes the outstanding challenge after a successful
// verification so the code cannot be replayed.
func (r *UserRepository) ClearOTP(ctx context.Context, userID string) error {
	const query = `
		UPDATE users
		SET otp_code = '', otp_expires_at = NULL
		WHERE id = $1`
	return r.execOnUser(ctx, query, userID)
}

// IncrementTokenVersion atomically bumps the revocation counter and
// returns the new version.
func (r *UserRepository) IncrementTokenVersion(ctx context.Context, userID string) (int64, error) {
	const query = `
		UPDATE users
		SET token_version = token_version + 1
		WHERE id = $1
		RETURNING token_version`
	var version int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return version, nil
}

// IncrementAllTokenVersions bumps every user's revocation counter in a
// single statement and returns the number of users affected. The
// statement is atomic at the store, so overlapping sweep runs cannot
// corrupt counters.
func (r *UserRepository) IncrementAllTokenVersions(ctx context.Context) (int64, error) {
	const query = `UPDATE users SET token_version = token_version + 1`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *UserRepository) SetActive(ctx context.Context, userID string, active bool) error {
	const query = `
		UPDATE users
		SET is_active = $1
		WHERE id = $2`
	return r.execOnUser(ctx, query, active, userID)
}

// RecordLogin appends a login-history entry and stamps last_login_at.
func (r *UserRepository) RecordLogin(ctx context.Context, userID string, loginAt time.Time, ip, userAgent string) error {
	const insert = `
		INSERT INTO login_history (user_id, login_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, insert, userID, loginAt, ip, userAgent); err != nil {
		return err
	}

	const stamp = `
		UPDATE users
		SET last_login_at = $1
		WHERE id = $2`
	return r.execOnUser(ctx, stamp, loginAt, userID)
}

// CountLogins returns the number of recorded logins for the user.
func (r *UserRepository) CountLogins(ctx context.Context, userID string) (int64, error) {
	const query = `SELECT COUNT(*) FROM login_history WHERE user_id = $1`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListLoginHistory returns the most recent entries, newest first.
func (r *UserRepository) ListLoginHistory(ctx context.Context, userID string, limit int) ([]types.LoginRecord, error) {
	const query = `
		SELECT id, user_id, login_at, ip_address, user_agent
		FROM login_history
		WHERE user_id = $1
		ORDER BY login_at DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLoginRecords(rows)
}

// ListPrunableLoginHistory returns every entry older than the newest
// keep per user, so the caller can archive before deleting.
func (r *UserRepository) ListPrunableLoginHistory(ctx context.Context, keep int) ([]types.LoginRecord, error) {
	const query = `
		SELECT id, user_id, login_at, ip_address, user_agent
		FROM (
			SELECT h.*, ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY login_at DESC) AS rn
			FROM login_history h
		) ranked
		WHERE rn > $1
		ORDER BY user_id, login_at`
	rows, err := r.db.QueryContext(ctx, query, keep)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLoginRecords(rows)
}

// DeleteLoginHistory removes the given entries.
func (r *UserRepository) DeleteLoginHistory(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `DELETE FROM login_history WHERE id = ANY($1)`
	_, err := r.db.ExecContext(ctx, query, pq.Array(ids))
	return err
}

func (r *UserRepository) queryUser(ctx context.Context, query string, arg any) (types.User, error) {
	var user types.User
	var oauthID sql.NullString
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&oauthID,
		&user.IsEmailVerified,
		&user.OTPCode,
		&user.OTPExpiresAt,
		&user.TokenVersion,
		&user.IsActive,
		&user.CreatedAt,
		&user.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	user.OAuthID = oauthID.String
	return user, nil
}

func (r *UserRepository) execOnUser(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanLoginRecords(rows *sql.Rows) ([]types.LoginRecord, error) {
	var records []types.LoginRecord
	for rows.Next() {
		var rec types.LoginRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.LoginAt, &rec.IPAddress, &rec.UserAgent); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func constraintError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case emailConstraint:
			return ErrDuplicateEmail
		case oauthIDConstraint:
			return ErrDuplicateOAuthID
		}
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
