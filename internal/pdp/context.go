package pdp

import "time"

// NeutralIPReputation is substituted when no threat intelligence is
// available; an unavailable feed is treated as neutral, never as a bad
// actor.
const NeutralIPReputation = 50

// NormalizeSubject returns a copy of the subject with the engine's
// invariants applied: the role set is never empty (a subject with no
// roles gets the minimal read-only viewer role).
func NormalizeSubject(sub Subject) Subject {
	if len(sub.Roles) == 0 {
		sub.Roles = []string{RoleViewer}
	}
	return sub
}

// NormalizeEnvironment returns a copy of the environment with upstream
// scores clamped into [0,100], a zero timestamp replaced by now, and the
// default device trust substituted when the subject has no device
// identifier and no score was resolved. Out-of-range inputs are clamped
// rather than rejected.
func NormalizeEnvironment(env Environment, sub Subject, cfg *Config, now time.Time) Environment {
	if env.Timestamp.IsZero() {
		env.Timestamp = now
	}

	if sub.DeviceID == "" && env.DeviceTrustScore == 0 {
		env.DeviceTrustScore = cfg.GetEffectiveDefaultDeviceTrust()
	}

	env.DeviceTrustScore = clampScore(env.DeviceTrustScore)
	env.BehaviorScore = clampScore(env.BehaviorScore)
	env.ThreatIntel.IPReputation = clampScore(env.ThreatIntel.IPReputation)
	env.ThreatIntel.GeoRisk = clampScore(env.ThreatIntel.GeoRisk)

	return env
}

// NeutralThreatIntel returns the snapshot used when the threat
// intelligence feed is unavailable.
func NeutralThreatIntel() ThreatIntel {
	return ThreatIntel{IPReputation: NeutralIPReputation}
}
