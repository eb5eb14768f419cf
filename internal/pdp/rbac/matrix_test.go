package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixDefaultGrants(t *testing.T) {
	t.Parallel()

	matrix, err := NewMatrix(nil)
	require.NoError(t, err)

	tests := []struct {
		name         string
		roles        []string
		resourceType string
		action       string
		want         bool
	}{
		{"admin wildcard covers everything", []string{RoleAdmin}, "system_config", "admin", true},
		{"compliance officer writes compliance data", []string{RoleComplianceOfficer}, "compliance_data", "write", true},
		{"compliance officer cannot write employee data", []string{RoleComplianceOfficer}, "employee_data", "write", false},
		{"analyst executes api endpoint", []string{RoleAnalyst}, "api_endpoint", "execute", true},
		{"analyst cannot export", []string{RoleAnalyst}, "compliance_data", "export", false},
		{"viewer reads contract data", []string{RoleViewer}, "contract_data", "read", true},
		{"viewer cannot read audit data", []string{RoleViewer}, "audit_data", "read", false},
		{"no roles means no access", nil, "employee_data", "read", false},
		{"unknown role means no access", []string{"ghost"}, "employee_data", "read", false},
		{"any granting role suffices", []string{"ghost", RoleViewer}, "employee_data", "read", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, matrix.Allowed(tt.roles, tt.resourceType, tt.action))
		})
	}
}

func TestMatrixOverrides(t *testing.T) {
	t.Parallel()

	t.Run("override replaces the whole grant set", func(t *testing.T) {
		t.Parallel()

		matrix, err := NewMatrix(map[string]Grants{
			RoleViewer: {"audit_data": {"read"}},
		})
		require.NoError(t, err)

		assert.True(t, matrix.Allowed([]string{RoleViewer}, "audit_data", "read"))
		// The built-in viewer grants are gone.
		assert.False(t, matrix.Allowed([]string{RoleViewer}, "employee_data", "read"))
	})

	t.Run("new role can be introduced", func(t *testing.T) {
		t.Parallel()

		matrix, err := NewMatrix(map[string]Grants{
			"auditor": {"audit_data": {"read", "export"}},
		})
		require.NoError(t, err)

		assert.True(t, matrix.Allowed([]string{"auditor"}, "audit_data", "export"))
		// Built-in roles are untouched.
		assert.True(t, matrix.Allowed([]string{RoleViewer}, "employee_data", "read"))
	})

	t.Run("wildcard action grant", func(t *testing.T) {
		t.Parallel()

		matrix, err := NewMatrix(map[string]Grants{
			"operator": {"background_task": {Wildcard}},
		})
		require.NoError(t, err)

		assert.True(t, matrix.Allowed([]string{"operator"}, "background_task", "delete"))
		assert.False(t, matrix.Allowed([]string{"operator"}, "employee_data", "read"))
	})

	t.Run("empty role name is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := NewMatrix(map[string]Grants{"": {"employee_data": {"read"}}})
		assert.Error(t, err)
	})

	t.Run("empty action is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := NewMatrix(map[string]Grants{"auditor": {"audit_data": {""}}})
		assert.Error(t, err)
	})
}

func TestMatrixRoles(t *testing.T) {
	t.Parallel()

	matrix, err := NewMatrix(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{RoleAdmin, RoleAnalyst, RoleComplianceOfficer, RoleViewer}, matrix.Roles())
}
