package redis

import "strings"

const (
	keyNamespace      = "bo"
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	webhookPrefix     = "webhook"
)

// IdempotencyKey namespaces a client-supplied Idempotency-Key under its request scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey(idempotencyPrefix, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return joinKey(rateLimitPrefix, scope)
}

// WebhookEventKey marks one delivery of an inbound webhook as seen.
func (c *Client) WebhookEventKey(source, eventID string) string {
	return joinKey(webhookPrefix, source, eventID)
}

// joinKey drops blank segments so "bo:webhook:identity" never grows a trailing colon.
func joinKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
