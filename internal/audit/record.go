// Package audit provides immutable audit records for policy decisions and
// the asynchronous sinks that persist them. A slow or failing sink never
// delays or fails the access decision already issued.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Subject is the redacted copy of the evaluated subject stored in an
// audit record. The session identifier is deliberately absent.
type Subject struct {
	UserID      string   `json:"user_id"`
	OrgID       string   `json:"org_id"`
	Roles       []string `json:"roles"`
	DeviceID    string   `json:"device_id,omitempty"`
	SourceIP    string   `json:"source_ip"`
	UserAgent   string   `json:"user_agent,omitempty"`
	MFAVerified bool     `json:"mfa_verified"`
}

// Resource identifies the resource an audit record refers to.
type Resource struct {
	Type           string  `json:"type"`
	ID             string  `json:"id"`
	Classification string  `json:"classification"`
	Sensitivity    float64 `json:"sensitivity"`
	RequiresCUI    bool    `json:"requires_cui"`
}

// Environment is the environment snapshot captured in an audit record.
type Environment struct {
	Network          string  `json:"network"`
	Country          string  `json:"country,omitempty"`
	DeviceTrustScore float64 `json:"device_trust_score"`
	BehaviorScore    float64 `json:"behavior_score"`
	IPReputation     float64 `json:"ip_reputation"`
	KnownBadActor    bool    `json:"known_bad_actor"`
}

// Record is an immutable, append-only audit record of a policy decision.
// Once built it is never mutated; persistence failures are routed to a
// fallback sink and never alter the record or block the response.
type Record struct {
	// ID is the unique record identifier.
	ID string `json:"id"`

	// Timestamp is when the decision was made.
	Timestamp time.Time `json:"timestamp"`

	// Subject is the redacted subject.
	Subject Subject `json:"subject"`

	// Resource is the accessed resource.
	Resource Resource `json:"resource"`

	// Action is the requested action type.
	Action string `json:"action"`

	// Effect is the decision outcome.
	Effect string `json:"effect"`

	// TrustLevel is the derived trust level.
	TrustLevel string `json:"trust_level"`

	// RiskScore is the computed risk score.
	RiskScore float64 `json:"risk_score"`

	// Violations lists the policy violations that accumulated during
	// evaluation.
	Violations []string `json:"violations,omitempty"`

	// Environment is the environment snapshot used for the decision.
	Environment Environment `json:"environment"`
}

// NewRecord creates an audit record with a fresh unique identifier.
func NewRecord(timestamp time.Time) *Record {
	return &Record{
		ID:        uuid.New().String(),
		Timestamp: timestamp.UTC(),
	}
}
