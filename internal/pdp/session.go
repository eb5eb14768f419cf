package pdp

import "time"

// Session constraint baselines and adjustments.
const (
	baselineMaxDuration    = 480 * time.Minute
	baselineReauthInterval = 60 * time.Minute

	lowTrustMaxDuration    = 60 * time.Minute
	lowTrustReauthInterval = 15 * time.Minute

	elevatedRiskReauthInterval = 30 * time.Minute
	highRiskReauthInterval     = 10 * time.Minute

	// Risk thresholds for session tightening.
	sessionEnhancedRiskThreshold = 50
	sessionForensicRiskThreshold = 70
)

// Decision expiration base minutes per trust level.
var expirationMinutes = map[TrustLevel]int{
	TrustVerified:  60,
	TrustHigh:      30,
	TrustMedium:    15,
	TrustLow:       5,
	TrustUntrusted: 1,
}

// sessionConstraints derives the time-bounded session behavior from the
// trust level, risk score, and resource. Adjustments are cumulative; the
// most restrictive value wins per field.
func sessionConstraints(trust TrustLevel, riskScore float64, res *Resource) SessionConstraints {
	constraints := SessionConstraints{
		MaxDuration:     baselineMaxDuration,
		ReauthInterval:  baselineReauthInterval,
		MonitoringLevel: MonitoringStandard,
	}

	if !trust.AtLeast(TrustMedium) {
		constraints.MaxDuration = lowTrustMaxDuration
		constraints.ReauthInterval = lowTrustReauthInterval
		constraints.tightenMonitoring(MonitoringEnhanced)
	}

	if riskScore > sessionEnhancedRiskThreshold {
		constraints.tightenMonitoring(MonitoringEnhanced)
		if constraints.ReauthInterval > elevatedRiskReauthInterval {
			constraints.ReauthInterval = elevatedRiskReauthInterval
		}
	}

	if riskScore > sessionForensicRiskThreshold {
		constraints.tightenMonitoring(MonitoringForensic)
		constraints.ReauthInterval = highRiskReauthInterval
	}

	if res.RequiresCUI {
		constraints.tightenMonitoring(MonitoringEnhanced)
		constraints.RestrictedActions = []ActionType{ActionExport, ActionShare, ActionDelete}
	}

	return constraints
}

// tightenMonitoring raises the monitoring level; it never lowers it.
func (c *SessionConstraints) tightenMonitoring(level MonitoringLevel) {
	if level.Rank() > c.MonitoringLevel.Rank() {
		c.MonitoringLevel = level
	}
}

// expiresAt computes when the decision expires. Base minutes depend on
// the trust level; risk above 50 halves them and risk above 70 quarters
// them, flooring at one minute.
func expiresAt(now time.Time, trust TrustLevel, riskScore float64) time.Time {
	minutes := expirationMinutes[trust]

	switch {
	case riskScore > sessionForensicRiskThreshold:
		minutes /= 4
	case riskScore > sessionEnhancedRiskThreshold:
		minutes /= 2
	}

	if minutes < 1 {
		minutes = 1
	}

	return now.Add(time.Duration(minutes) * time.Minute)
}
