package types

// SuccessEnvelope wraps every 2xx body. Warnings carry non-fatal problems the
// caller should surface, such as a decision that committed locally but did not
// reach the identity provider.
type SuccessEnvelope struct {
	Data     any      `json:"data"`
	Warnings []string `json:"warnings,omitempty"`
}

// APIError is the public face of a pkg/errors.Error.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
