package enums

import (
	"fmt"
	"strings"
)

// ModerationAction is an admin decision applied to an account.
type ModerationAction string

const (
	ModerationActionApprove ModerationAction = "APPROVE"
	ModerationActionReject  ModerationAction = "REJECT"
	ModerationActionSuspend ModerationAction = "SUSPEND"
)

var validModerationActions = []ModerationAction{
	ModerationActionApprove,
	ModerationActionReject,
	ModerationActionSuspend,
}

// String implements fmt.Stringer.
func (m ModerationAction) String() string {
	return string(m)
}

// IsValid reports whether the value is a known ModerationAction.
func (m ModerationAction) IsValid() bool {
	for _, candidate := range validModerationActions {
		if candidate == m {
			return true
		}
	}
	return false
}

// TargetStatus returns the approval status the action moves an account into.
func (m ModerationAction) TargetStatus() (ApprovalStatus, bool) {
	switch m {
	case ModerationActionApprove:
		return ApprovalStatusApproved, true
	case ModerationActionReject:
		return ApprovalStatusRejected, true
	case ModerationActionSuspend:
		return ApprovalStatusSuspended, true
	}
	return "", false
}

// RequiresReason reports whether the action must carry a moderator reason.
func (m ModerationAction) RequiresReason() bool {
	return m == ModerationActionReject
}

// ParseModerationAction converts raw input into a ModerationAction.
func ParseModerationAction(value string) (ModerationAction, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validModerationActions {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid moderation action %q", value)
}

// ModerationActionNames lists the accepted action names in declaration order.
func ModerationActionNames() []string {
	names := make([]string, len(validModerationActions))
	for i, action := range validModerationActions {
		names[i] = string(action)
	}
	return names
}
