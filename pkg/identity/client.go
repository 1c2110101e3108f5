package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/backoffice/pkg/config"
	pkgerrors "github.com/angelmondragon/backoffice/pkg/errors"
)

const (
	defaultTimeout              = 5 * time.Second
	responseBodyReadLimit int64 = 1024
)

var (
	errAPIKeyRequired  = errors.New("identity api key is required")
	errBaseURLRequired = errors.New("identity base url is required")

	// ErrProfileNotFound is returned when the provider has no user for the id.
	ErrProfileNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "identity profile not found")
)

// APIError describes a non-2xx answer from the identity provider.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity provider status %d: %s", e.Status, e.Body)
}

// Temporary reports whether retrying the same call could succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// IsRetryable reports whether err came from a transient provider failure. Transport
// errors and timeouts are retryable; 4xx answers other than 429 are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrProfileNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

// Profile is the subset of a provider user record the back office reads.
type Profile struct {
	ExternalID     string
	Email          string
	ApprovalStatus string
	Role           string
	Banned         bool
}

// ProfilePatch is merged into the provider's public metadata. Empty fields are left untouched.
type ProfilePatch struct {
	ApprovalStatus string `json:"approvalStatus,omitempty"`
	Role           string `json:"role,omitempty"`
}

// Client wraps the identity provider's user management API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout bounds every call made by the client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClient builds the provider client from configuration.
func NewClient(cfg config.IdentityConfig, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		timeout:    cfg.RequestTimeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.timeout <= 0 {
		client.timeout = defaultTimeout
	}
	return client, nil
}

type userResponse struct {
	ID             string `json:"id"`
	Banned         bool   `json:"banned"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	PublicMetadata struct {
		ApprovalStatus string `json:"approvalStatus"`
		Role           string `json:"role"`
	} `json:"public_metadata"`
}

// GetProfile reads one user's public metadata.
func (c *Client) GetProfile(ctx context.Context, externalID string) (*Profile, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUpstreamUnavailable, "identity client not configured")
	}
	var body userResponse
	if err := c.do(ctx, http.MethodGet, c.userPath(externalID), nil, &body); err != nil {
		return nil, err
	}

	profile := &Profile{
		ExternalID:     body.ID,
		ApprovalStatus: body.PublicMetadata.ApprovalStatus,
		Role:           body.PublicMetadata.Role,
		Banned:         body.Banned,
	}
	if len(body.EmailAddresses) > 0 {
		profile.Email = body.EmailAddresses[0].EmailAddress
	}
	return profile, nil
}

// UpdateProfile merges patch into the user's public metadata.
func (c *Client) UpdateProfile(ctx context.Context, externalID string, patch ProfilePatch) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeUpstreamUnavailable, "identity client not configured")
	}
	payload := map[string]any{"public_metadata": patch}
	return c.do(ctx, http.MethodPatch, c.userPath(externalID)+"/metadata", payload, nil)
}

// BanUser blocks the account and revokes its sessions at the provider.
func (c *Client) BanUser(ctx context.Context, externalID string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeUpstreamUnavailable, "identity client not configured")
	}
	return c.do(ctx, http.MethodPost, c.userPath(externalID)+"/ban", nil, nil)
}

// UnbanUser lifts a previous ban.
func (c *Client) UnbanUser(ctx context.Context, externalID string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeUpstreamUnavailable, "identity client not configured")
	}
	return c.do(ctx, http.MethodPost, c.userPath(externalID)+"/unban", nil, nil)
}

func (c *Client) userPath(externalID string) string {
	return fmt.Sprintf("%s/v1/users/%s", c.baseURL, url.PathEscape(strings.TrimSpace(externalID)))
}

func (c *Client) do(ctx context.Context, method, target string, payload any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal identity request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build identity request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, "execute identity request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrProfileNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, apiErr, "identity request failed")
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, "decode identity response")
	}
	return nil
}
