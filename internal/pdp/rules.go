package pdp

import (
	"fmt"
	"time"

	"github.com/vyrodovalexey/avpdp/internal/pdp/rbac"
)

// Rule evaluation thresholds.
const (
	mfaSensitivityThreshold           = 50
	justificationSensitivityThreshold = 30
	approvalSensitivityThreshold      = 70
)

// RuleResult is the structured outcome of a single policy rule. Results
// are folded in rule order; a rule can only add to the outcome, never
// retract what an earlier rule established.
type RuleResult struct {
	// Violations are reasons to surface to the caller.
	Violations []string

	// Required are follow-up actions the caller must complete.
	Required []RequiredAction

	// Deny marks the request as a hard deny.
	Deny bool

	// Challenge requires additional verification.
	Challenge bool
}

// Rule is one independent policy rule. Rules inspect the request and the
// derived trust level; evaluation order affects which reasons
// accumulate, not the final precedence.
type Rule struct {
	// Name identifies the rule in logs and tests.
	Name string

	// Check evaluates the rule.
	Check func(req *Request, trust TrustLevel, now time.Time) RuleResult
}

// policyOutcome is the folded result of the whole rule set.
type policyOutcome struct {
	Violations    []string
	Required      []RequiredAction
	MustDeny      bool
	MustChallenge bool
}

// fold merges a rule result into the outcome.
func (o *policyOutcome) fold(result RuleResult) {
	o.Violations = append(o.Violations, result.Violations...)
	o.Required = append(o.Required, result.Required...)
	o.MustDeny = o.MustDeny || result.Deny
	o.MustChallenge = o.MustChallenge || result.Challenge
}

// requires reports whether the outcome already demands the action.
func (o *policyOutcome) requires(action RequiredAction) bool {
	for _, a := range o.Required {
		if a == action {
			return true
		}
	}
	return false
}

// newRuleSet builds the fixed, ordered policy rule set. The order is
// part of the engine contract.
func newRuleSet(matrix *rbac.Matrix, cfg *Config) []Rule {
	return []Rule{
		{Name: "mfa_required_for_sensitive", Check: checkMFARequired},
		{Name: "cui_trust_gate", Check: checkCUITrustGate},
		{Name: "admin_trust_gate", Check: checkAdminTrustGate},
		{Name: "export_justification", Check: checkExportJustification},
		{Name: "delete_approval", Check: checkDeleteApproval},
		{Name: "known_bad_actor", Check: checkKnownBadActor},
		{Name: "geolocation", Check: checkGeolocation},
		{Name: "rbac", Check: checkRBAC(matrix)},
		{Name: "cross_organization", Check: checkCrossOrganization},
		{Name: "after_hours_admin", Check: checkAfterHoursAdmin(cfg)},
	}
}

// checkMFARequired requires an MFA challenge for sensitive resources
// when the subject has not completed MFA.
func checkMFARequired(req *Request, _ TrustLevel, _ time.Time) RuleResult {
	if req.Resource.Sensitivity > mfaSensitivityThreshold && !req.Subject.MFAVerified {
		return RuleResult{
			Violations: []string{"multi-factor authentication required for sensitive resources"},
			Required:   []RequiredAction{RequiredMFAChallenge},
			Challenge:  true,
		}
	}
	return RuleResult{}
}

// checkCUITrustGate gates controlled-information resources: verified
// trust passes, high trust passes with an additional MFA challenge, and
// anything lower is a hard deny.
func checkCUITrustGate(req *Request, trust TrustLevel, _ time.Time) RuleResult {
	if !req.Resource.RequiresCUI {
		return RuleResult{}
	}

	switch {
	case trust.AtLeast(TrustVerified):
		return RuleResult{}
	case trust.AtLeast(TrustHigh):
		return RuleResult{
			Violations: []string{"controlled-information access at high trust requires additional verification"},
			Required:   []RequiredAction{RequiredMFAChallenge},
			Challenge:  true,
		}
	default:
		return RuleResult{
			Violations: []string{fmt.Sprintf("controlled-information access requires verified trust, current level is %s", trust)},
			Deny:       true,
		}
	}
}

// checkAdminTrustGate requires high or verified trust for admin actions.
func checkAdminTrustGate(req *Request, trust TrustLevel, _ time.Time) RuleResult {
	if req.Action.Type == ActionAdmin && !trust.AtLeast(TrustHigh) {
		return RuleResult{
			Violations: []string{fmt.Sprintf("admin actions require high trust, current level is %s", trust)},
			Deny:       true,
		}
	}
	return RuleResult{}
}

// checkExportJustification requires a justification for export and share
// actions on resources above the justification sensitivity threshold.
func checkExportJustification(req *Request, _ TrustLevel, _ time.Time) RuleResult {
	if req.Action.Type != ActionExport && req.Action.Type != ActionShare {
		return RuleResult{}
	}
	if req.Resource.Sensitivity > justificationSensitivityThreshold {
		return RuleResult{
			Required: []RequiredAction{RequiredJustification},
		}
	}
	return RuleResult{}
}

// checkDeleteApproval requires manager approval for delete actions on
// highly sensitive resources.
func checkDeleteApproval(req *Request, _ TrustLevel, _ time.Time) RuleResult {
	if req.Action.Type == ActionDelete && req.Resource.Sensitivity > approvalSensitivityThreshold {
		return RuleResult{
			Required: []RequiredAction{RequiredManagerApproval},
		}
	}
	return RuleResult{}
}

// checkKnownBadActor denies any request from a confirmed bad actor,
// regardless of trust or role.
func checkKnownBadActor(req *Request, _ TrustLevel, _ time.Time) RuleResult {
	if req.Environment.ThreatIntel.KnownBadActor {
		return RuleResult{
			Violations: []string{"source is a known bad actor"},
			Deny:       true,
		}
	}
	return RuleResult{}
}

// checkGeolocation denies controlled-information access from disallowed
// locations; other resources require an MFA challenge instead.
func checkGeolocation(req *Request, _ TrustLevel, _ time.Time) RuleResult {
	geo := req.Environment.Geolocation
	if geo == nil || geo.Allowed {
		return RuleResult{}
	}

	if req.Resource.RequiresCUI {
		return RuleResult{
			Violations: []string{fmt.Sprintf("controlled-information access from disallowed location %s", geo.Country)},
			Deny:       true,
		}
	}
	return RuleResult{
		Violations: []string{fmt.Sprintf("access from disallowed location %s requires verification", geo.Country)},
		Required:   []RequiredAction{RequiredMFAChallenge},
		Challenge:  true,
	}
}

// checkRBAC denies requests no role of the subject authorizes.
func checkRBAC(matrix *rbac.Matrix) func(req *Request, trust TrustLevel, now time.Time) RuleResult {
	return func(req *Request, _ TrustLevel, _ time.Time) RuleResult {
		if matrix.Allowed(req.Subject.Roles, string(req.Resource.Type), string(req.Action.Type)) {
			return RuleResult{}
		}
		return RuleResult{
			Violations: []string{fmt.Sprintf("no role grants %s on %s", req.Action.Type, req.Resource.Type)},
			Deny:       true,
		}
	}
}

// checkCrossOrganization denies access to resources owned by a
// different organization.
func checkCrossOrganization(req *Request, _ TrustLevel, _ time.Time) RuleResult {
	if req.Resource.OrgID != "" && req.Resource.OrgID != req.Subject.OrgID {
		return RuleResult{
			Violations: []string{"cross-organization access is not permitted"},
			Deny:       true,
		}
	}
	return RuleResult{}
}

// checkAfterHoursAdmin requires a step-up MFA challenge for admin
// actions outside business hours, even when otherwise permitted.
func checkAfterHoursAdmin(cfg *Config) func(req *Request, trust TrustLevel, now time.Time) RuleResult {
	return func(req *Request, _ TrustLevel, now time.Time) RuleResult {
		if req.Action.Type != ActionAdmin || cfg.withinBusinessHours(now) {
			return RuleResult{}
		}
		return RuleResult{
			Violations: []string{"admin actions outside business hours require step-up verification"},
			Required:   []RequiredAction{RequiredMFAChallenge},
			Challenge:  true,
		}
	}
}
