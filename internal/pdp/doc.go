// Package pdp implements the zero-trust policy decision point: for every
// attempted operation it computes a composite risk score, derives a
// request-scoped trust level, evaluates an ordered set of security policy
// rules, and returns an allow/deny/challenge/step_up decision together
// with session constraints and an immutable audit record.
//
// The engine is stateless with respect to requests: every evaluation is a
// self-contained computation over its inputs plus the current wall-clock
// time. Trust is never cached or carried across requests. The only side
// effect is the fire-and-forget audit emission, which can never delay or
// fail a decision.
package pdp
