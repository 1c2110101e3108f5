package enums

import "fmt"

// RouteCapability is the access level a route prefix demands.
type RouteCapability string

const (
	RouteCapabilityPublic         RouteCapability = "public"
	RouteCapabilityPendingAllowed RouteCapability = "pending-allowed"
	RouteCapabilityApprovedOnly   RouteCapability = "approved-only"
	RouteCapabilityAdminOnly      RouteCapability = "admin-only"
)

var validRouteCapabilities = []RouteCapability{
	RouteCapabilityPublic,
	RouteCapabilityPendingAllowed,
	RouteCapabilityApprovedOnly,
	RouteCapabilityAdminOnly,
}

// String implements fmt.Stringer.
func (r RouteCapability) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RouteCapability.
func (r RouteCapability) IsValid() bool {
	for _, candidate := range validRouteCapabilities {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRouteCapability converts raw input into a RouteCapability.
func ParseRouteCapability(value string) (RouteCapability, error) {
	for _, candidate := range validRouteCapabilities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid route capability %q", value)
}
