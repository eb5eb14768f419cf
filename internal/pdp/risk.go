package pdp

import "time"

// Risk score boundaries.
const (
	// MinRiskScore is the lowest possible risk score.
	MinRiskScore = 0

	// MaxRiskScore is the highest possible risk score.
	MaxRiskScore = 100
)

// Subject risk weights.
const (
	riskNoMFA     = 25
	riskStaleAuth = 15
	riskNoDevice  = 10
)

// Resource risk weights.
const (
	riskSensitivityFactor = 0.2
	riskRequiresCUI       = 15
	riskTopClassification = 20
)

// Environment risk weights.
const (
	riskPublicNetwork     = 15
	riskAnonymizingProxy  = 40
	riskLowDeviceTrust    = 20
	riskKnownBadActor     = 50
	riskLowIPReputation   = 15
	riskAnomalousBehavior = 15
	riskDisallowedGeo     = 25
	riskGeoFactor         = 0.1
)

// Environment risk thresholds.
const (
	lowDeviceTrustThreshold  = 50
	lowIPReputationThreshold = 30
	lowBehaviorThreshold     = 50
)

// actionRiskWeights assigns a fixed weight per action type, increasing
// from read to admin.
var actionRiskWeights = map[ActionType]float64{
	ActionRead:    5,
	ActionWrite:   10,
	ActionExecute: 15,
	ActionExport:  18,
	ActionShare:   18,
	ActionDelete:  20,
	ActionAdmin:   30,
}

// riskScore computes the composite risk score for the request. It is a
// pure additive model over subject, resource, action, and environment
// factors, clamped to [0,100]. Absent optional fields contribute zero.
func riskScore(req *Request, cfg *Config, now time.Time) float64 {
	var score float64

	score += subjectRisk(&req.Subject, cfg, now)
	score += resourceRisk(&req.Resource)
	score += actionRiskWeights[req.Action.Type]
	score += environmentRisk(&req.Environment)

	return clampScore(score)
}

// subjectRisk scores the subject factors.
func subjectRisk(sub *Subject, cfg *Config, now time.Time) float64 {
	var score float64

	if !sub.MFAVerified {
		score += riskNoMFA
	}
	if isSessionStale(sub, cfg, now) {
		score += riskStaleAuth
	}
	if sub.DeviceID == "" {
		score += riskNoDevice
	}

	return score
}

// resourceRisk scores the resource factors.
func resourceRisk(res *Resource) float64 {
	score := res.Sensitivity * riskSensitivityFactor

	if res.RequiresCUI {
		score += riskRequiresCUI
	}
	if res.Classification == ClassificationClassifiedReady {
		score += riskTopClassification
	}

	return score
}

// environmentRisk scores the environment factors.
func environmentRisk(env *Environment) float64 {
	var score float64

	switch env.Network {
	case NetworkPublic:
		score += riskPublicNetwork
	case NetworkAnonymizingProxy:
		score += riskAnonymizingProxy
	}

	if env.DeviceTrustScore < lowDeviceTrustThreshold {
		score += riskLowDeviceTrust
	}
	if env.ThreatIntel.KnownBadActor {
		score += riskKnownBadActor
	}
	if env.ThreatIntel.IPReputation < lowIPReputationThreshold {
		score += riskLowIPReputation
	}
	if env.BehaviorScore < lowBehaviorThreshold {
		score += riskAnomalousBehavior
	}
	if env.Geolocation != nil && !env.Geolocation.Allowed {
		score += riskDisallowedGeo
	}
	score += env.ThreatIntel.GeoRisk * riskGeoFactor

	return score
}

// isSessionStale reports whether the subject's last authentication is
// older than the staleness threshold.
func isSessionStale(sub *Subject, cfg *Config, now time.Time) bool {
	if sub.LastAuthAt.IsZero() {
		return true
	}
	return now.Sub(sub.LastAuthAt) > cfg.GetEffectiveSessionStaleness()
}

// clampScore clamps a score into [0,100]. Malformed upstream values are
// clamped rather than rejected.
func clampScore(score float64) float64 {
	if score < MinRiskScore {
		return MinRiskScore
	}
	if score > MaxRiskScore {
		return MaxRiskScore
	}
	return score
}
