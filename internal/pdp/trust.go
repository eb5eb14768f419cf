package pdp

import "time"

// Trust point weights.
const (
	trustMFAVerified      = 30
	trustFreshAuth        = 20
	trustDeviceFactor     = 0.2
	trustCorporateVPN     = 15
	trustCorporateNetwork = 20
	trustBehaviorFactor   = 0.15
	trustRiskPenalty      = 0.3
)

// Trust level thresholds.
const (
	trustVerifiedThreshold = 80
	trustHighThreshold     = 60
	trustMediumThreshold   = 40
	trustLowThreshold      = 20
)

// classifyTrust derives the request-scoped trust level from the subject,
// the environment, and the already-computed risk score. It is computed
// fresh on every request; trust is never carried across requests as an
// implicit credential.
func classifyTrust(req *Request, riskScore float64, cfg *Config, now time.Time) TrustLevel {
	var points float64

	if req.Subject.MFAVerified {
		points += trustMFAVerified
	}
	if !isSessionStale(&req.Subject, cfg, now) {
		points += trustFreshAuth
	}
	points += req.Environment.DeviceTrustScore * trustDeviceFactor

	switch req.Environment.Network {
	case NetworkCorporateVPN:
		points += trustCorporateVPN
	case NetworkCorporate:
		points += trustCorporateNetwork
	}

	points += req.Environment.BehaviorScore * trustBehaviorFactor
	points -= riskScore * trustRiskPenalty

	switch {
	case points >= trustVerifiedThreshold:
		return TrustVerified
	case points >= trustHighThreshold:
		return TrustHigh
	case points >= trustMediumThreshold:
		return TrustMedium
	case points >= trustLowThreshold:
		return TrustLow
	default:
		return TrustUntrusted
	}
}
