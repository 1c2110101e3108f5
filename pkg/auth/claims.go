package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ProfileMetadata mirrors the public metadata the identity provider embeds in session tokens.
// Values are kept raw because they are edited outside this service.
type ProfileMetadata struct {
	ApprovalStatus string `json:"approvalStatus,omitempty"`
	Role           string `json:"role,omitempty"`
}

// SessionPayload captures the data available when minting a session token.
type SessionPayload struct {
	ExternalID string
	Email      string
	Metadata   *ProfileMetadata
	JTI        string
}

// SessionClaims is the typed view of a verified session token.
type SessionClaims struct {
	Email    string           `json:"email,omitempty"`
	Metadata *ProfileMetadata `json:"metadata,omitempty"`
	jwt.RegisteredClaims
}

// ExternalID returns the identity provider's user id carried in sub.
func (c *SessionClaims) ExternalID() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Subject)
}

// IssuedAtTime returns the iat claim, or the zero time when absent.
func (c *SessionClaims) IssuedAtTime() time.Time {
	if c == nil || c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// HasApprovalStatus reports whether the token carries a non-empty approval status.
func (c *SessionClaims) HasApprovalStatus() bool {
	return c != nil && c.Metadata != nil && strings.TrimSpace(c.Metadata.ApprovalStatus) != ""
}
