package pdp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTrust(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()

	tests := []struct {
		name string
		req  *Request
		risk float64
		want TrustLevel
	}{
		{
			// 30 + 20 + 18 + 20 + 13.5 = 101.5 points.
			name: "corporate network with every positive signal",
			req: &Request{
				Subject: Subject{MFAVerified: true, LastAuthAt: now.Add(-5 * time.Minute)},
				Environment: Environment{
					Network:          NetworkCorporate,
					DeviceTrustScore: 90,
					BehaviorScore:    90,
				},
			},
			risk: 0,
			want: TrustVerified,
		},
		{
			// 101.5 - 100*0.3 = 71.5 points.
			name: "maximum risk penalty drops verified to high",
			req: &Request{
				Subject: Subject{MFAVerified: true, LastAuthAt: now.Add(-5 * time.Minute)},
				Environment: Environment{
					Network:          NetworkCorporate,
					DeviceTrustScore: 90,
					BehaviorScore:    90,
				},
			},
			risk: 100,
			want: TrustHigh,
		},
		{
			// 30 + 20 + 8 + 0 + 8.25 - 20.1 = 46.15 points.
			name: "public network with weak device lands medium",
			req: &Request{
				Subject: Subject{MFAVerified: true, LastAuthAt: now.Add(-5 * time.Minute)},
				Environment: Environment{
					Network:          NetworkPublic,
					DeviceTrustScore: 40,
					BehaviorScore:    55,
				},
			},
			risk: 67,
			want: TrustMedium,
		},
		{
			// 0 + 20 + 10 + 0 + 6 - 9 = 27 points.
			name: "no mfa on public network lands low",
			req: &Request{
				Subject: Subject{MFAVerified: false, LastAuthAt: now.Add(-5 * time.Minute)},
				Environment: Environment{
					Network:          NetworkPublic,
					DeviceTrustScore: 50,
					BehaviorScore:    40,
				},
			},
			risk: 30,
			want: TrustLow,
		},
		{
			// 0 + 0 + 0 + 0 + 0 - 24 points.
			name: "anonymous stale session is untrusted",
			req: &Request{
				Subject:     Subject{MFAVerified: false},
				Environment: Environment{Network: NetworkPublic},
			},
			risk: 80,
			want: TrustUntrusted,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := classifyTrust(tt.req, tt.risk, cfg, now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrustLevelOrdering(t *testing.T) {
	t.Parallel()

	assert.True(t, TrustVerified.AtLeast(TrustHigh))
	assert.True(t, TrustHigh.AtLeast(TrustHigh))
	assert.False(t, TrustMedium.AtLeast(TrustHigh))
	assert.False(t, TrustUntrusted.AtLeast(TrustLow))
}

func TestTrustLevelJSON(t *testing.T) {
	t.Parallel()

	data, err := TrustHigh.MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, `"high"`, string(data))

	var level TrustLevel
	assert.NoError(t, level.UnmarshalJSON([]byte(`"verified"`)))
	assert.Equal(t, TrustVerified, level)

	assert.Error(t, level.UnmarshalJSON([]byte(`"cosmic"`)))
}
