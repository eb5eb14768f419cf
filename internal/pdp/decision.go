package pdp

// Residual risk thresholds. These fire even when no named rule did; the
// named rules and the numeric thresholds are intentionally overlapping
// safety nets.
const (
	// DenyRiskThreshold is the residual fail-safe: any request scoring
	// above it is denied outright.
	DenyRiskThreshold = 80

	// ChallengeRiskThreshold is the elevated-risk threshold above which
	// a request must be verified before proceeding.
	ChallengeRiskThreshold = 60
)

// Reason strings for decisions not attributable to a named rule.
const (
	reasonRiskExceedsThreshold = "risk score exceeds threshold"
	reasonElevatedRisk         = "elevated risk requires verification"
	reasonGenericVerification  = "additional verification required"
)

// buildDecision synthesizes the decision effect, reasons, and required
// actions from the folded policy outcome and the risk score. Precedence,
// first match wins: deny, challenge/step-up, residual risk deny,
// elevated risk challenge, allow.
func buildDecision(outcome *policyOutcome, riskScore float64) (Effect, []string, []RequiredAction) {
	if outcome.MustDeny {
		return EffectDeny, outcome.Violations, nil
	}

	if outcome.MustChallenge || len(outcome.Required) > 0 {
		effect := EffectChallenge
		if outcome.requires(RequiredMFAChallenge) {
			effect = EffectStepUp
		}
		reasons := outcome.Violations
		if len(reasons) == 0 {
			reasons = []string{reasonGenericVerification}
		}
		return effect, reasons, dedupeActions(outcome.Required)
	}

	if riskScore > DenyRiskThreshold {
		return EffectDeny, append(outcome.Violations, reasonRiskExceedsThreshold), nil
	}

	if riskScore > ChallengeRiskThreshold {
		return EffectChallenge, []string{reasonElevatedRisk}, []RequiredAction{RequiredMFAChallenge}
	}

	return EffectAllow, outcome.Violations, nil
}

// dedupeActions removes duplicate required actions, preserving first
// occurrence order.
func dedupeActions(actions []RequiredAction) []RequiredAction {
	if len(actions) < 2 {
		return actions
	}
	seen := make(map[RequiredAction]bool, len(actions))
	result := make([]RequiredAction, 0, len(actions))
	for _, action := range actions {
		if seen[action] {
			continue
		}
		seen[action] = true
		result = append(result, action)
	}
	return result
}
