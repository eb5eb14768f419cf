package pdp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// riskTestNow is the fixed evaluation time used by risk tests.
var riskTestNow = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

// lowRiskRequest returns a request whose only risk contributions are the
// read action weight (5) and the sensitivity factor (20 * 0.2 = 4).
func lowRiskRequest() *Request {
	return &Request{
		Subject: Subject{
			UserID:      "u-100",
			OrgID:       "org-1",
			Roles:       []string{RoleAnalyst},
			DeviceID:    "dev-1",
			MFAVerified: true,
			LastAuthAt:  riskTestNow.Add(-10 * time.Minute),
		},
		Resource: Resource{
			Type:           ResourceEmployeeData,
			Classification: ClassificationInternal,
			Sensitivity:    20,
		},
		Action: Action{Type: ActionRead},
		Environment: Environment{
			Timestamp:        riskTestNow,
			Geolocation:      &Geolocation{Country: "US", Allowed: true},
			Network:          NetworkCorporateVPN,
			DeviceTrustScore: 90,
			BehaviorScore:    90,
			ThreatIntel:      ThreatIntel{IPReputation: 80},
		},
	}
}

func TestRiskScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(req *Request)
		want   float64
	}{
		{
			name:   "baseline low risk",
			mutate: func(_ *Request) {},
			want:   9,
		},
		{
			name: "missing mfa",
			mutate: func(req *Request) {
				req.Subject.MFAVerified = false
			},
			want: 34,
		},
		{
			name: "stale authentication",
			mutate: func(req *Request) {
				req.Subject.LastAuthAt = time.Time{}
			},
			want: 24,
		},
		{
			name: "authentication older than threshold",
			mutate: func(req *Request) {
				req.Subject.LastAuthAt = riskTestNow.Add(-2 * time.Hour)
			},
			want: 24,
		},
		{
			name: "unregistered device",
			mutate: func(req *Request) {
				req.Subject.DeviceID = ""
			},
			want: 19,
		},
		{
			name: "public network",
			mutate: func(req *Request) {
				req.Environment.Network = NetworkPublic
			},
			want: 24,
		},
		{
			name: "anonymizing proxy",
			mutate: func(req *Request) {
				req.Environment.Network = NetworkAnonymizingProxy
			},
			want: 49,
		},
		{
			name: "known bad actor with poor reputation",
			mutate: func(req *Request) {
				req.Environment.ThreatIntel.KnownBadActor = true
				req.Environment.ThreatIntel.IPReputation = 10
			},
			want: 74,
		},
		{
			name: "anomalous behavior",
			mutate: func(req *Request) {
				req.Environment.BehaviorScore = 30
			},
			want: 24,
		},
		{
			name: "disallowed location",
			mutate: func(req *Request) {
				req.Environment.Geolocation = &Geolocation{Country: "KP", Allowed: false}
			},
			want: 34,
		},
		{
			name: "absent geolocation contributes nothing",
			mutate: func(req *Request) {
				req.Environment.Geolocation = nil
			},
			want: 9,
		},
		{
			name: "geographic risk factor",
			mutate: func(req *Request) {
				req.Environment.ThreatIntel.GeoRisk = 40
			},
			want: 13,
		},
		{
			name: "controlled information at top classification",
			mutate: func(req *Request) {
				req.Resource.RequiresCUI = true
				req.Resource.Classification = ClassificationClassifiedReady
			},
			want: 44,
		},
		{
			name: "admin action weight",
			mutate: func(req *Request) {
				req.Action.Type = ActionAdmin
			},
			want: 34,
		},
		{
			name: "everything wrong clamps at maximum",
			mutate: func(req *Request) {
				req.Subject.MFAVerified = false
				req.Subject.LastAuthAt = time.Time{}
				req.Subject.DeviceID = ""
				req.Resource.Sensitivity = 100
				req.Resource.RequiresCUI = true
				req.Action.Type = ActionAdmin
				req.Environment.Network = NetworkAnonymizingProxy
				req.Environment.DeviceTrustScore = 5
				req.Environment.BehaviorScore = 10
				req.Environment.ThreatIntel = ThreatIntel{
					IPReputation:  5,
					KnownBadActor: true,
					GeoRisk:       90,
				}
				req.Environment.Geolocation = &Geolocation{Country: "KP", Allowed: false}
			},
			want: MaxRiskScore,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := lowRiskRequest()
			tt.mutate(req)

			got := riskScore(req, DefaultConfig(), riskTestNow)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestRiskScoreNeverNegative(t *testing.T) {
	t.Parallel()

	req := lowRiskRequest()
	req.Resource.Sensitivity = 0
	req.Action.Type = ""

	got := riskScore(req, DefaultConfig(), riskTestNow)
	assert.GreaterOrEqual(t, got, float64(MinRiskScore))
}

func TestIsSessionStale(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	tests := []struct {
		name       string
		lastAuthAt time.Time
		want       bool
	}{
		{"zero time is stale", time.Time{}, true},
		{"fresh authentication", riskTestNow.Add(-5 * time.Minute), false},
		{"just inside threshold", riskTestNow.Add(-59 * time.Minute), false},
		{"just outside threshold", riskTestNow.Add(-61 * time.Minute), true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sub := &Subject{LastAuthAt: tt.lastAuthAt}
			assert.Equal(t, tt.want, isSessionStale(sub, cfg, riskTestNow))
		})
	}
}

func TestClampScore(t *testing.T) {
	t.Parallel()

	assert.Equal(t, float64(0), clampScore(-5))
	assert.Equal(t, float64(50), clampScore(50))
	assert.Equal(t, float64(100), clampScore(153))
}
