package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pscheid92/wastepoints/internal/domain"
)

// tokenClaims are the claims the backend puts into access tokens. The
// signature is never checked client-side: the token is only inspected to
// catch a profile that does not belong to it.
type tokenClaims struct {
	UserID userID `json:"user_id"`
	jwt.RegisteredClaims
}

// userID accepts both numeric and string encodings.
type userID struct {
	value int64
	set   bool
}

func (u *userID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user_id claim: %w", err)
	}
	u.value, u.set = n, true
	return nil
}

func parseClaims(access string) (*tokenClaims, bool) {
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return nil, false
	}
	return claims, true
}

// verifyHolder checks that access was issued to profileID. Opaque tokens and
// tokens without a user_id claim are accepted.
func verifyHolder(access string, profileID int64) error {
	claims, ok := parseClaims(access)
	if !ok || !claims.UserID.set {
		return nil
	}
	if claims.UserID.value != profileID {
		return fmt.Errorf("%w: token user %d, profile %d", domain.ErrTokenMismatch, claims.UserID.value, profileID)
	}
	return nil
}

// tokenExpiry returns the exp claim of access, when it has one.
func tokenExpiry(access string) (time.Time, bool) {
	claims, ok := parseClaims(access)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

var _ json.Unmarshaler = (*userID)(nil)
