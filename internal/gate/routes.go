package gate

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/angelmondragon/backoffice/pkg/enums"
)

// Route binds a path prefix to the capability it requires.
type Route struct {
	Prefix     string
	Capability enums.RouteCapability
}

// RouteTable classifies request paths by longest matching prefix. Prefixes only
// match on segment boundaries, so /admin covers /admin/users but not /administrator.
type RouteTable struct {
	routes   []Route
	fallback enums.RouteCapability
}

// NewRouteTable validates routes and orders them for longest-prefix lookup.
func NewRouteTable(routes []Route, fallback enums.RouteCapability) (*RouteTable, error) {
	if !fallback.IsValid() {
		return nil, fmt.Errorf("invalid fallback capability %q", fallback)
	}

	seen := make(map[string]struct{}, len(routes))
	ordered := make([]Route, 0, len(routes))
	for _, route := range routes {
		prefix := normalizePath(route.Prefix)
		if !strings.HasPrefix(strings.TrimSpace(route.Prefix), "/") {
			return nil, fmt.Errorf("route prefix %q must start with /", route.Prefix)
		}
		if !route.Capability.IsValid() {
			return nil, fmt.Errorf("route %q has invalid capability %q", route.Prefix, route.Capability)
		}
		if _, dup := seen[prefix]; dup {
			return nil, fmt.Errorf("duplicate route prefix %q", prefix)
		}
		seen[prefix] = struct{}{}
		ordered = append(ordered, Route{Prefix: prefix, Capability: route.Capability})
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Prefix) > len(ordered[j].Prefix)
	})
	return &RouteTable{routes: ordered, fallback: fallback}, nil
}

// DefaultRouteTable is the back office's route classification.
func DefaultRouteTable() *RouteTable {
	table, err := NewRouteTable([]Route{
		{Prefix: "/sign-in", Capability: enums.RouteCapabilityPublic},
		{Prefix: "/sign-up", Capability: enums.RouteCapabilityPublic},
		{Prefix: "/api/webhooks", Capability: enums.RouteCapabilityPublic},
		{Prefix: "/health", Capability: enums.RouteCapabilityPublic},
		{Prefix: "/metrics", Capability: enums.RouteCapabilityPublic},
		{Prefix: "/perfil", Capability: enums.RouteCapabilityPendingAllowed},
		{Prefix: "/api/v1/me", Capability: enums.RouteCapabilityPendingAllowed},
		{Prefix: "/admin", Capability: enums.RouteCapabilityAdminOnly},
		{Prefix: "/api/admin", Capability: enums.RouteCapabilityAdminOnly},
		{Prefix: "/clientes", Capability: enums.RouteCapabilityApprovedOnly},
		{Prefix: "/planejamentos", Capability: enums.RouteCapabilityApprovedOnly},
		{Prefix: "/propostas", Capability: enums.RouteCapabilityApprovedOnly},
		{Prefix: "/transcricoes", Capability: enums.RouteCapabilityApprovedOnly},
		{Prefix: "/dashboard", Capability: enums.RouteCapabilityApprovedOnly},
	}, enums.RouteCapabilityApprovedOnly)
	if err != nil {
		panic(err)
	}
	return table
}

// Classify returns the capability required for p.
func (t *RouteTable) Classify(p string) enums.RouteCapability {
	normalized := normalizePath(p)
	for _, route := range t.routes {
		if matchesPrefix(normalized, route.Prefix) {
			return route.Capability
		}
	}
	return t.fallback
}

// Routes returns a copy of the table, longest prefix first.
func (t *RouteTable) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

func matchesPrefix(p, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(p, prefix) {
		return false
	}
	return len(p) == len(prefix) || p[len(prefix)] == '/'
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
