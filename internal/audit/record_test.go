package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 10, 14, 0, 0, 0, time.FixedZone("CET", 3600))
	record := NewRecord(ts)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, time.UTC, record.Timestamp.Location())
	assert.True(t, record.Timestamp.Equal(ts))

	other := NewRecord(ts)
	assert.NotEqual(t, record.ID, other.ID)
}

func TestRecordJSONCarriesNoSessionIdentifier(t *testing.T) {
	t.Parallel()

	record := NewRecord(time.Now())
	record.Subject = Subject{
		UserID:      "u-100",
		OrgID:       "org-1",
		Roles:       []string{"analyst"},
		DeviceID:    "dev-1",
		SourceIP:    "10.0.0.5",
		MFAVerified: true,
	}
	record.Resource = Resource{Type: "employee_data", ID: "emp-42"}
	record.Action = "read"
	record.Effect = "allow"
	record.TrustLevel = "verified"
	record.RiskScore = 9

	data, err := json.Marshal(record)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "session_id")
	assert.Contains(t, string(data), `"user_id":"u-100"`)
	assert.Contains(t, string(data), `"effect":"allow"`)
}

func TestRecordJSONOmitsEmptyViolations(t *testing.T) {
	t.Parallel()

	record := NewRecord(time.Now())

	data, err := json.Marshal(record)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "violations")

	record.Violations = []string{"bad"}
	data, err = json.Marshal(record)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"violations":["bad"]`)
}
