package pdp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vyrodovalexey/avpdp/internal/audit"
)

// Effect represents the outcome of a policy decision.
type Effect string

// Decision effects.
const (
	// EffectAllow permits the request to proceed.
	EffectAllow Effect = "allow"

	// EffectDeny rejects the request.
	EffectDeny Effect = "deny"

	// EffectChallenge requires additional verification before proceeding.
	EffectChallenge Effect = "challenge"

	// EffectStepUp requires a fresh MFA verification before proceeding.
	EffectStepUp Effect = "step_up"
)

// TrustLevel is the derived, request-scoped confidence classification.
// Levels are ordered ascending from TrustUntrusted to TrustVerified.
type TrustLevel int

// Trust levels.
const (
	TrustUntrusted TrustLevel = iota
	TrustLow
	TrustMedium
	TrustHigh
	TrustVerified
)

// trustLevelNames maps trust levels to their wire representation.
var trustLevelNames = map[TrustLevel]string{
	TrustUntrusted: "untrusted",
	TrustLow:       "low",
	TrustMedium:    "medium",
	TrustHigh:      "high",
	TrustVerified:  "verified",
}

// String returns the string representation of the trust level.
func (t TrustLevel) String() string {
	if name, ok := trustLevelNames[t]; ok {
		return name
	}
	return fmt.Sprintf("trust(%d)", int(t))
}

// AtLeast reports whether the trust level is at or above the given level.
func (t TrustLevel) AtLeast(level TrustLevel) bool {
	return t >= level
}

// MarshalJSON marshals the trust level as its string name.
func (t TrustLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON unmarshals a trust level from its string name.
func (t *TrustLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for level, n := range trustLevelNames {
		if n == name {
			*t = level
			return nil
		}
	}
	return fmt.Errorf("unknown trust level: %q", name)
}

// ResourceType identifies the kind of resource being accessed.
type ResourceType string

// Resource types.
const (
	ResourceEmployeeData   ResourceType = "employee_data"
	ResourceComplianceData ResourceType = "compliance_data"
	ResourceFinancialData  ResourceType = "financial_data"
	ResourceContractData   ResourceType = "contract_data"
	ResourceAuditData      ResourceType = "audit_data"
	ResourceSystemConfig   ResourceType = "system_config"
	ResourceAPIEndpoint    ResourceType = "api_endpoint"
	ResourceBackgroundTask ResourceType = "background_task"
)

// ResourceTypes lists all known resource types.
var ResourceTypes = []ResourceType{
	ResourceEmployeeData,
	ResourceComplianceData,
	ResourceFinancialData,
	ResourceContractData,
	ResourceAuditData,
	ResourceSystemConfig,
	ResourceAPIEndpoint,
	ResourceBackgroundTask,
}

// Classification is the data classification level of a resource,
// ordered from least to most restrictive.
type Classification string

// Classification levels.
const (
	ClassificationPublic          Classification = "public"
	ClassificationInternal        Classification = "internal"
	ClassificationConfidential    Classification = "confidential"
	ClassificationCUI             Classification = "cui"
	ClassificationCUISpecified    Classification = "cui_specified"
	ClassificationClassifiedReady Classification = "classified_ready"
)

// classificationRanks orders classification levels ascending.
var classificationRanks = map[Classification]int{
	ClassificationPublic:          0,
	ClassificationInternal:        1,
	ClassificationConfidential:    2,
	ClassificationCUI:             3,
	ClassificationCUISpecified:    4,
	ClassificationClassifiedReady: 5,
}

// Rank returns the ordinal rank of the classification. Unknown values
// rank as public, the least restrictive tier.
func (c Classification) Rank() int {
	return classificationRanks[c]
}

// ActionType identifies the operation being requested.
type ActionType string

// Action types.
const (
	ActionRead    ActionType = "read"
	ActionWrite   ActionType = "write"
	ActionDelete  ActionType = "delete"
	ActionExecute ActionType = "execute"
	ActionAdmin   ActionType = "admin"
	ActionExport  ActionType = "export"
	ActionShare   ActionType = "share"
)

// NetworkType classifies the network a request originates from.
type NetworkType string

// Network types.
const (
	NetworkCorporateVPN     NetworkType = "corporate_vpn"
	NetworkCorporate        NetworkType = "corporate_network"
	NetworkTrusted          NetworkType = "trusted_network"
	NetworkPublic           NetworkType = "public_network"
	NetworkAnonymizingProxy NetworkType = "anonymizing_proxy"
	NetworkUnknownVPN       NetworkType = "unknown_vpn"
)

// MonitoringLevel is the session monitoring intensity.
type MonitoringLevel string

// Monitoring levels, ordered ascending in strictness.
const (
	MonitoringStandard MonitoringLevel = "standard"
	MonitoringEnhanced MonitoringLevel = "enhanced"
	MonitoringForensic MonitoringLevel = "forensic"
)

// monitoringRanks orders monitoring levels ascending.
var monitoringRanks = map[MonitoringLevel]int{
	MonitoringStandard: 0,
	MonitoringEnhanced: 1,
	MonitoringForensic: 2,
}

// Rank returns the ordinal rank of the monitoring level.
func (m MonitoringLevel) Rank() int {
	return monitoringRanks[m]
}

// RequiredAction is a follow-up the caller must complete before or while
// proceeding.
type RequiredAction string

// Required actions.
const (
	RequiredMFAChallenge    RequiredAction = "mfa_challenge"
	RequiredManagerApproval RequiredAction = "manager_approval"
	RequiredJustification   RequiredAction = "justification"
	RequiredTimeLimited     RequiredAction = "time_limited"
)

// Built-in role names.
const (
	RoleAdmin             = "admin"
	RoleComplianceOfficer = "compliance_officer"
	RoleAnalyst           = "analyst"
	RoleViewer            = "viewer"
)

// Subject is the identity attempting access. It is constructed per
// request from authenticated session state and never persisted here.
type Subject struct {
	// UserID is the unique identifier of the user.
	UserID string `json:"user_id"`

	// OrgID is the organization the subject belongs to.
	OrgID string `json:"org_id"`

	// SessionID is the active session identifier. It is redacted from
	// audit records.
	SessionID string `json:"session_id"`

	// Roles are the subject's roles. Never empty after normalization;
	// defaults to the viewer role.
	Roles []string `json:"roles"`

	// DeviceID is the registered device identifier, if any.
	DeviceID string `json:"device_id,omitempty"`

	// SourceIP is the request source address.
	SourceIP string `json:"source_ip"`

	// UserAgent is the client descriptor.
	UserAgent string `json:"user_agent,omitempty"`

	// MFAVerified indicates whether the session completed MFA.
	MFAVerified bool `json:"mfa_verified"`

	// LastAuthAt is when the subject last authenticated.
	LastAuthAt time.Time `json:"last_auth_at"`
}

// HasRole reports whether the subject holds the given role.
func (s *Subject) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Resource is the target of the requested action.
type Resource struct {
	// Type is the resource type.
	Type ResourceType `json:"type"`

	// ID is the resource identifier.
	ID string `json:"id"`

	// Classification is the data classification level.
	Classification Classification `json:"classification"`

	// OrgID is the owning organization, if the resource is scoped to one.
	OrgID string `json:"org_id,omitempty"`

	// RequiresCUI indicates the resource requires controlled-information
	// handling.
	RequiresCUI bool `json:"requires_cui"`

	// Sensitivity is the sensitivity score in [0,100]. It correlates with
	// Classification by policy convention.
	Sensitivity float64 `json:"sensitivity"`
}

// Action is the requested operation.
type Action struct {
	// Type is the action type.
	Type ActionType `json:"type"`

	// Scope optionally narrows the action.
	Scope string `json:"scope,omitempty"`

	// Metadata carries additional action attributes.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Geolocation describes where a request originated.
type Geolocation struct {
	Country string `json:"country"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`

	// Allowed indicates the location passes the allowed-location policy.
	Allowed bool `json:"allowed"`
}

// ThreatIntel is the threat-intelligence snapshot for the request.
type ThreatIntel struct {
	// IPReputation is the source IP reputation in [0,100]; higher is
	// better.
	IPReputation float64 `json:"ip_reputation"`

	// KnownBadActor flags a confirmed malicious source.
	KnownBadActor bool `json:"known_bad_actor"`

	// RecentThreats lists recent threat indicators for the source.
	RecentThreats []string `json:"recent_threats,omitempty"`

	// GeoRisk is the geographic risk score in [0,100].
	GeoRisk float64 `json:"geo_risk"`
}

// Compliance carries the compliance-mode flags for the request.
type Compliance struct {
	Compliant      bool   `json:"compliant"`
	AssuranceLevel string `json:"assurance_level,omitempty"`
	AuditMode      bool   `json:"audit_mode"`
	GracePeriod    bool   `json:"grace_period"`
}

// Environment describes the ambient conditions at request time. Optional
// fields that are absent contribute nothing to risk; they are never an
// error.
type Environment struct {
	// Timestamp is the request time. Zero means "now".
	Timestamp time.Time `json:"timestamp"`

	// Geolocation is the resolved request origin, if available.
	Geolocation *Geolocation `json:"geolocation,omitempty"`

	// Network is the network classification.
	Network NetworkType `json:"network"`

	// DeviceTrustScore is the device trust score in [0,100].
	DeviceTrustScore float64 `json:"device_trust_score"`

	// BehaviorScore is the behavioral anomaly score in [0,100]; higher
	// means more normal behavior.
	BehaviorScore float64 `json:"behavior_score"`

	// ThreatIntel is the threat-intelligence snapshot.
	ThreatIntel ThreatIntel `json:"threat_intel"`

	// Compliance carries compliance-mode flags.
	Compliance Compliance `json:"compliance"`
}

// Request bundles the four evaluation inputs.
type Request struct {
	Subject     Subject     `json:"subject"`
	Resource    Resource    `json:"resource"`
	Action      Action      `json:"action"`
	Environment Environment `json:"environment"`
}

// SessionConstraints is the time-bounded session behavior derived from
// trust, risk, and resource sensitivity.
type SessionConstraints struct {
	// MaxDuration is the maximum session duration.
	MaxDuration time.Duration `json:"max_duration"`

	// ReauthInterval is how often the session must reauthenticate.
	ReauthInterval time.Duration `json:"reauth_interval"`

	// RestrictedActions lists actions forbidden for the session.
	RestrictedActions []ActionType `json:"restricted_actions,omitempty"`

	// MonitoringLevel is the session monitoring intensity.
	MonitoringLevel MonitoringLevel `json:"monitoring_level"`
}

// Decision is the result of a policy evaluation.
type Decision struct {
	// Effect is the decision outcome.
	Effect Effect `json:"effect"`

	// TrustLevel is the derived trust level.
	TrustLevel TrustLevel `json:"trust_level"`

	// RiskScore is the computed risk score in [0,100].
	RiskScore float64 `json:"risk_score"`

	// Reasons are human-readable reasons for the decision. A deny always
	// carries at least one.
	Reasons []string `json:"reasons"`

	// RequiredActions lists follow-up actions the caller must complete.
	RequiredActions []RequiredAction `json:"required_actions,omitempty"`

	// Audit is the immutable audit record for this evaluation.
	Audit *audit.Record `json:"audit_record,omitempty"`

	// ExpiresAt is when the decision expires.
	ExpiresAt time.Time `json:"expires_at"`

	// Session holds the derived session constraints.
	Session SessionConstraints `json:"session_constraints"`
}
