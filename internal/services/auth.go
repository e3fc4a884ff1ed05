package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codebuddy/apiserver/internal/auth"
	"github.com/codebuddy/apiserver/internal/metrics"
	"github.com/codebuddy/apiserver/internal/notify"
	"github.com/codebuddy/apiserver/internal/ratelimit"
	"github.com/codebuddy/apiserver/internal/store"
	"github.com/codebuddy/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByOAuthID(ctx context.Context, oauthID string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	SetOTP(ctx context.Context, userID, code string, expiresAt time.Time) error
	ClearOTP(ctx context.Context, userID string) error
	IncrementTokenVersion(ctx context.Context, userID string) (int64, error)
	IncrementAllTokenVersions(ctx context.Context) (int64, error)
	SetActive(ctx context.Context, userID string, active bool) error
	RecordLogin(ctx context.Context, userID string, loginAt time.Time, ip, userAgent string) error
	CountLogins(ctx context.Context, userID string) (int64, error)
	ListLoginHistory(ctx context.Context, userID string, limit int) ([]types.LoginRecord, error)
	ListPrunableLoginHistory(ctx context.Context, keep int) ([]types.LoginRecord, error)
	DeleteLoginHistory(ctx context.Context, ids []int64) error
}

// LoginMeta carries request attribution recorded in login history.
type LoginMeta struct {
	IP        string
	UserAgent string
}

// AuthResult is the success payload of any login transition.
type AuthResult struct {
	Token string        `json:"token"`
	User  types.Summary `json:"user"`
}

// Login method labels used in metrics.
const (
	methodOTP      = "otp"
	methodPassword = "password"
	methodOAuth    = "oauth"
)

// AuthService composes the credential store, OTP manager, token issuer,
// attempt limiter, and notifier into the login/registration/OAuth-link
// flows.
type AuthService struct {
	repo     UserRepository
	otp      *auth.OTPManager
	tokens   *auth.TokenIssuer
	notifier notify.Notifier
	limiter  ratelimit.Limiter
	log      *zap.SugaredLogger
}

func NewAuthService(
	repo UserRepository,
	otp *auth.OTPManager,
	tokens *auth.TokenIssuer,
	notifier notify.Notifier,
	limiter ratelimit.Limiter,
	log *zap.SugaredLogger,
) *AuthService {
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}
	return &AuthService{
		repo:     repo,
		otp:      otp,
		tokens:   tokens,
		notifier: notifier,
		limiter:  limiter,
		log:      log,
	}
}

// RequestChallenge creates or authenticates the account for email and
// issues a fresh OTP, replacing any outstanding one. Delivery failure
// fails the request; the user stays pending and a retry reissues.
func (s *AuthService) RequestChallenge(ctx context.Context, email, password, name string) error {
	email = normalizeEmail(email)

	if err := s.allow(ctx, "otp-issue:"+email); err != nil {
		return err
	}

	user, err := s.repo.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if password == "" {
			return ErrPasswordRequired
		}
		hash, hashErr := auth.HashPassword(password)
		if hashErr != nil {
			return fmt.Errorf("hashing password: %w", hashErr)
		}
		user, err = s.repo.Create(ctx, types.User{
			Email:        email,
			Name:         strings.TrimSpace(name),
			PasswordHash: hash,
		})
		if err != nil {
			return fmt.Errorf("creating user: %w", err)
		}
	case err != nil:
		return fmt.Errorf("loading user: %w", err)
	default:
		// Existing account: a supplied password must match before a
		// code goes out, so the OTP email cannot be used to probe.
		if password != "" && user.HasPassword() && !auth.CheckPassword(user.PasswordHash, password) {
			return ErrInvalidCredentials
		}
	}

	code, expiresAt, err := s.otp.Issue()
	if err != nil {
		return err
	}
	if err := s.repo.SetOTP(ctx, user.ID, code, expiresAt); err != nil {
		return fmt.Errorf("storing otp: %w", err)
	}
	if err := s.notifier.SendOTP(ctx, user.Email, user.Name, code); err != nil {
		return fmt.Errorf("delivering otp: %w", err)
	}

	metrics.OTPIssued.Inc()
	return nil
}

// CompleteChallenge verifies the OTP and finishes the login transition:
// mark verified, clear the challenge, record history, mint a token, and
// set the account active.
func (s *AuthService) CompleteChallenge(ctx context.Context, email, code, name string, meta LoginMeta) (*AuthResult, error) {
	email = normalizeEmail(email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if err := s.allow(ctx, "otp-verify:"+email); err != nil {
		return nil, err
	}

	if !s.otp.Verify(&user, code) {
		metrics.OTPRejected.Inc()
		return nil, ErrInvalidOrExpiredOTP
	}

	// Clear the challenge before anything else so the code cannot be
	// replayed even if a later step fails.
	if err := s.repo.ClearOTP(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("clearing otp: %w", err)
	}
	user.OTPCode = ""
	user.OTPExpiresAt = nil

	if name = strings.TrimSpace(name); name != "" && user.Name == "" {
		user.Name = name
	}
	user.IsEmailVerified = true
	if _, err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("saving user: %w", err)
	}

	return s.finishLogin(ctx, &user, meta, methodOTP)
}

// PasswordLogin authenticates an already-verified password account.
func (s *AuthService) PasswordLogin(ctx context.Context, email, password string, meta LoginMeta) (*AuthResult, error) {
	email = normalizeEmail(email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if !user.HasPassword() || !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	return s.finishLogin(ctx, &user, meta, methodPassword)
}

// OAuthComplete logs in a verified external identity: reuse the account
// already linked to the provider id, else link by email, else create a
// fresh pre-verified account.
func (s *AuthService) OAuthComplete(ctx context.Context, identity auth.Identity, meta LoginMeta) (*AuthResult, error) {
	user, err := s.repo.GetByOAuthID(ctx, identity.ProviderID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if errors.Is(err, store.ErrNotFound) {
		email := normalizeEmail(identity.Email)
		user, err = s.repo.GetByEmail(ctx, email)
		switch {
		case err == nil:
			// Link the provider to the existing account. The provider
			// verified control of the email, so mark it verified.
			user.OAuthID = identity.ProviderID
			if user.Name == "" {
				user.Name = identity.Name
			}
			user.IsEmailVerified = true
			if _, err := s.repo.Update(ctx, user); err != nil {
				return nil, fmt.Errorf("linking oauth id: %w", err)
			}
		case errors.Is(err, store.ErrNotFound):
			user, err = s.repo.Create(ctx, types.User{
				Email:           email,
				Name:            identity.Name,
				OAuthID:         identity.ProviderID,
				IsEmailVerified: true,
			})
			if err != nil {
				return nil, fmt.Errorf("creating user: %w", err)
			}
		default:
			return nil, fmt.Errorf("loading user: %w", err)
		}
	}

	return s.finishLogin(ctx, &user, meta, methodOAuth)
}

// AuthenticateToken resolves a bearer token to its user, requiring the
// embedded token version to exactly equal the stored revocation counter.
func (s *AuthService) AuthenticateToken(ctx context.Context, token string) (types.User, error) {
	userID, version, err := s.tokens.Validate(token)
	if err != nil {
		return types.User{}, ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthorized
		}
		return types.User{}, fmt.Errorf("loading user: %w", err)
	}
	if user.TokenVersion != version {
		return types.User{}, ErrUnauthorized
	}
	return user, nil
}

// CurrentUser returns the outward projection of an authenticated user.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (types.Summary, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Summary{}, ErrUnauthorized
		}
		return types.Summary{}, fmt.Errorf("loading user: %w", err)
	}
	return user.Summary(), nil
}

// Logout clears session presence and bumps the revocation counter,
// invalidating every outstanding token for the user on all devices.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.repo.SetActive(ctx, userID, false); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthorized
		}
		return fmt.Errorf("clearing session flag: %w", err)
	}
	if _, err := s.repo.IncrementTokenVersion(ctx, userID); err != nil {
		return fmt.Errorf("revoking tokens: %w", err)
	}
	return nil
}

// LoginHistory returns the most recent login records for the user.
func (s *AuthService) LoginHistory(ctx context.Context, userID string, limit int) ([]types.LoginRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListLoginHistory(ctx, userID, limit)
}

func (s *AuthService) finishLogin(ctx context.Context, user *types.User, meta LoginMeta, method string) (*AuthResult, error) {
	now := time.Now()
	if err := s.repo.RecordLogin(ctx, user.ID, now, meta.IP, meta.UserAgent); err != nil {
		return nil, fmt.Errorf("recording login: %w", err)
	}
	if err := s.repo.SetActive(ctx, user.ID, true); err != nil {
		return nil, fmt.Errorf("setting session flag: %w", err)
	}
	user.IsActive = true
	user.LastLoginAt = &now

	token, err := s.tokens.Mint(user.ID, user.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("minting token: %w", err)
	}

	if count, err := s.repo.CountLogins(ctx, user.ID); err == nil && count == 1 {
		s.notifier.SendWelcome(ctx, user.Email, user.Name)
	} else if err != nil {
		s.log.Warnw("failed to count logins", "user_id", user.ID, "error", err)
	}

	metrics.Logins.WithLabelValues(method).Inc()
	return &AuthResult{Token: token, User: user.Summary()}, nil
}

func (s *AuthService) allow(ctx context.Context, key string) error {
	ok, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// A broken limiter should not lock everyone out.
		s.log.Warnw("attempt limiter unavailable", "error", err)
		return nil
	}
	if !ok {
		metrics.RateLimited.Inc()
		return ErrRateLimited
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
