package inventory

import (
	"fmt"

	"github.com/stockroom-labs/inventory-gate/auth"
	"github.com/stockroom-labs/inventory-gate/routes"
)

// ErrorResponse represents a standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// RouteConfig declares or overrides one gated route.
type RouteConfig struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path"`
	// Kind is one of none, admin, all_of, any_of.
	Kind     string   `json:"kind"`
	Flags    []string `json:"flags,omitempty"`
	Fallback string   `json:"fallback,omitempty"`
}

// route converts the declaration into a table route.
func (rc RouteConfig) route() (routes.Route, error) {
	req, err := auth.ParseRequirement(rc.Kind, rc.Flags)
	if err != nil {
		return routes.Route{}, fmt.Errorf("route %s: %w", rc.Path, err)
	}
	return routes.Route{
		Name:        rc.Name,
		Path:        rc.Path,
		Requirement: req,
		Fallback:    rc.Fallback,
	}, nil
}

const (
	transientLogout = "logout"
	transientKeep   = "keep"
)

// errorPolicy maps the transient_errors setting to a guard policy.
func errorPolicy(mode string) (auth.ErrorPolicy, error) {
	switch mode {
	case "", transientLogout:
		return auth.InvalidateOnAnyError, nil
	case transientKeep:
		return auth.KeepSessionOnTransientError, nil
	default:
		return 0, fmt.Errorf("invalid transient_errors: %s (must be 'keep' or 'logout')", mode)
	}
}
