package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/codebuddy/apiserver/types"
)

const otpDigits = 6

var otpModulus = big.NewInt(1_000_000)

// OTPManager issues and verifies the single outstanding one-time-code
// challenge on a user record.
type OTPManager struct {
	ttl time.Duration
	now func() time.Time
}

func NewOTPManager(ttl time.Duration) *OTPManager {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &OTPManager{ttl: ttl, now: time.Now}
}

// Issue generates a fresh 6-digit code and its expiry. Persisting the
// pair replaces any prior challenge, so at most one is outstanding.
func (m *OTPManager) Issue() (code string, expiresAt time.Time, err error) {
	n, err := rand.Int(rand.Reader, otpModulus)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generating otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), m.now().Add(m.ttl), nil
}

// Verify reports whether the candidate matches the user's outstanding
// challenge. It fails when no challenge exists, the challenge expired,
// or the codes differ.
func (m *OTPManager) Verify(user *types.User, candidate string) bool {
	if user.OTPCode == "" || user.OTPExpiresAt == nil {
		return false
	}
	if m.now().After(*user.OTPExpiresAt) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(user.OTPCode), []byte(candidate)) == 1
}
