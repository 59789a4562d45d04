package providers

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pulseiq/pulse-engine/pkg/apperrors"
)

// StateClaims is the payload of the signed OAuth state token. The state
// correlates the callback with the user who started the flow and bounds
// replay via the expiry.
type StateClaims struct {
	ProviderID string `json:"pvd"`
	jwt.RegisteredClaims
}

// SignState builds a signed state token for an OAuth redirect.
func SignState(secret string, userID uuid.UUID, providerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := StateClaims{
		ProviderID: providerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign state token: %w", err)
	}
	return signed, nil
}

// VerifyState validates the signature and freshness of a callback state token
// and returns the user it belongs to along with the provider it was issued
// for. Stale or tampered tokens return apperrors.ErrStateInvalid.
func VerifyState(secret, state string) (uuid.UUID, string, error) {
	var claims StateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %v", apperrors.ErrStateInvalid, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: bad subject", apperrors.ErrStateInvalid)
	}
	if claims.ProviderID == "" {
		return uuid.Nil, "", fmt.Errorf("%w: missing provider", apperrors.ErrStateInvalid)
	}

	return userID, claims.ProviderID, nil
}
