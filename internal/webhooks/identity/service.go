package identitywebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/angelmondragon/backoffice/internal/users"
	"github.com/angelmondragon/backoffice/pkg/db/models"
	pkgerrors "github.com/angelmondragon/backoffice/pkg/errors"
	"github.com/angelmondragon/backoffice/pkg/logger"
)

// Source namespaces dedupe keys for this provider.
const Source = "identity"

const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

type userEnsurer interface {
	EnsureUser(ctx context.Context, dto users.EnsureUserDTO) (*models.User, bool, error)
}

type cacheInvalidator interface {
	Invalidate(externalID string)
}

type ServiceParams struct {
	Users  userEnsurer
	Cache  cacheInvalidator
	Logger *logger.Logger
}

// Service mirrors provider-side user lifecycle events into the local store.
type Service struct {
	users userEnsurer
	cache cacheInvalidator
	logg  *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repo required")
	}
	if params.Cache == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "status cache required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{users: params.Users, cache: params.Cache, logg: params.Logger}, nil
}

type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventUser `json:"data"`
}

type EventUser struct {
	ID             string         `json:"id"`
	EmailAddresses []EventAddress `json:"email_addresses"`
}

type EventAddress struct {
	EmailAddress string `json:"email_address"`
}

// PrimaryEmail returns the first listed address.
func (u EventUser) PrimaryEmail() string {
	for _, addr := range u.EmailAddresses {
		if email := strings.TrimSpace(addr.EmailAddress); email != "" {
			return email
		}
	}
	return ""
}

// HandleEvent applies one verified event. Unknown types are acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "identity event required")
	}
	externalID := strings.TrimSpace(event.Data.ID)

	switch strings.ToLower(event.Type) {
	case EventUserCreated:
		if externalID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "user id missing")
		}
		_, created, err := s.users.EnsureUser(ctx, users.EnsureUserDTO{
			ExternalID: externalID,
			Email:      event.Data.PrimaryEmail(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure local user")
		}
		if created {
			s.logg.Info(s.logg.WithExternalID(ctx, externalID), "local user created from identity webhook")
		}
		return nil
	case EventUserUpdated, EventUserDeleted:
		// Metadata may have changed provider-side; force the next request past cache and claims.
		if externalID != "" {
			s.cache.Invalidate(externalID)
		}
		return nil
	default:
		return nil
	}
}

// VerifySignature checks the hex HMAC-SHA256 of payload under secret.
func VerifySignature(payload []byte, secret, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" || secret == "" {
		return false
	}
	header = strings.TrimPrefix(header, "sha256=")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

// Sign produces the header value VerifySignature accepts.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
