// Package rbac implements the static role-based access-control matrix
// consulted by the policy evaluator. The matrix maps role -> resource
// type -> allowed action set; a subject is authorized when any of its
// roles grants the action. A missing role/action pair is a denial, never
// an error (default deny).
package rbac

import (
	"fmt"
	"sort"
)

// Built-in role names.
const (
	RoleAdmin             = "admin"
	RoleComplianceOfficer = "compliance_officer"
	RoleAnalyst           = "analyst"
	RoleViewer            = "viewer"
)

// Wildcard matches any resource type or action in matrix definitions.
const Wildcard = "*"

// Grants maps resource type to the set of allowed actions for one role.
type Grants map[string][]string

// Matrix is an immutable role permission table. Construct it once at
// startup (or on config reload) and share it freely; lookups are
// read-only.
type Matrix struct {
	grants map[string]map[string]map[string]bool
}

// DefaultGrants returns the built-in permission sets for the four
// standard roles. Each role carries a fixed, narrowing permission set.
func DefaultGrants() map[string]Grants {
	return map[string]Grants{
		RoleAdmin: {
			Wildcard: {Wildcard},
		},
		RoleComplianceOfficer: {
			"compliance_data": {"read", "write", "export"},
			"audit_data":      {"read", "export"},
			"employee_data":   {"read"},
			"contract_data":   {"read"},
			"financial_data":  {"read"},
			"api_endpoint":    {"read", "execute"},
			"background_task": {"read"},
		},
		RoleAnalyst: {
			"employee_data":   {"read"},
			"compliance_data": {"read"},
			"financial_data":  {"read"},
			"contract_data":   {"read"},
			"audit_data":      {"read"},
			"api_endpoint":    {"read", "execute"},
			"background_task": {"read", "execute"},
		},
		RoleViewer: {
			"employee_data":   {"read"},
			"compliance_data": {"read"},
			"contract_data":   {"read"},
			"api_endpoint":    {"read"},
		},
	}
}

// NewMatrix builds a matrix from the built-in grants merged with the
// given overrides. An override replaces the whole grant set of the role
// it names.
func NewMatrix(overrides map[string]Grants) (*Matrix, error) {
	merged := DefaultGrants()
	for role, grants := range overrides {
		if role == "" {
			return nil, fmt.Errorf("rbac override with empty role name")
		}
		merged[role] = grants
	}

	m := &Matrix{grants: make(map[string]map[string]map[string]bool, len(merged))}
	for role, grants := range merged {
		byType := make(map[string]map[string]bool, len(grants))
		for resourceType, actions := range grants {
			actionSet := make(map[string]bool, len(actions))
			for _, action := range actions {
				if action == "" {
					return nil, fmt.Errorf("rbac grant for role %q has empty action", role)
				}
				actionSet[action] = true
			}
			byType[resourceType] = actionSet
		}
		m.grants[role] = byType
	}

	return m, nil
}

// Allowed reports whether any of the given roles grants the action on
// the resource type.
func (m *Matrix) Allowed(roles []string, resourceType, action string) bool {
	for _, role := range roles {
		if m.roleAllows(role, resourceType, action) {
			return true
		}
	}
	return false
}

// roleAllows checks a single role against the matrix.
func (m *Matrix) roleAllows(role, resourceType, action string) bool {
	byType, ok := m.grants[role]
	if !ok {
		return false
	}

	for _, key := range []string{resourceType, Wildcard} {
		actions, ok := byType[key]
		if !ok {
			continue
		}
		if actions[action] || actions[Wildcard] {
			return true
		}
	}
	return false
}

// Roles returns the sorted list of roles the matrix knows about.
func (m *Matrix) Roles() []string {
	roles := make([]string, 0, len(m.grants))
	for role := range m.grants {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
