package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/backoffice/pkg/config"
)

// clockSkew tolerates small drift between the identity provider and this host.
const clockSkew = 30 * time.Second

var (
	// ErrSessionExpired marks a well-formed token past its exp.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionInvalid covers every other verification failure.
	ErrSessionInvalid = errors.New("session invalid")
)

var signingMethod = jwt.SigningMethodHS256

// MintSessionToken signs a session the way the identity provider does. The
// service itself only verifies; tooling and tests mint.
func MintSessionToken(cfg config.SessionConfig, now time.Time, payload SessionPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errors.New("session secret is required")
	case cfg.Issuer == "":
		return "", errors.New("session issuer is required")
	case cfg.Lifetime() <= 0:
		return "", errors.New("session lifetime must be positive")
	case strings.TrimSpace(payload.ExternalID) == "":
		return "", errors.New("external id is required")
	}

	id := strings.TrimSpace(payload.JTI)
	if id == "" {
		id = uuid.NewString()
	}
	claims := SessionClaims{
		Email:    payload.Email,
		Metadata: payload.Metadata,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   payload.ExternalID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Lifetime())),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// ParseSessionToken verifies signature, issuer, iat and exp and returns the
// claims. Failures wrap ErrSessionExpired or ErrSessionInvalid.
func ParseSessionToken(cfg config.SessionConfig, raw string) (*SessionClaims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("session secret is required")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)

	claims := &SessionClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	if claims.ExternalID() == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrSessionInvalid)
	}
	return claims, nil
}
