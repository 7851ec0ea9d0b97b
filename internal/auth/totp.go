package auth

import (
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	apperrors "angelone-web/internal/errors"
)

// Clock supplies the current wall-clock time. Broker session tokens are
// single-use and time-boxed, so the code must be derived from the real
// current time in production; tests inject a fixed clock.
type Clock func() time.Time

// GenerateTOTP derives the standard 6-digit, 30-second HMAC-SHA1 code from
// a base32 shared secret at the given instant.
func GenerateTOTP(secret string, at time.Time) (string, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	code, err := totp.GenerateCode(normalized, at)
	if err != nil {
		return "", apperrors.Wrap(err, "generating TOTP")
	}
	return code, nil
}
