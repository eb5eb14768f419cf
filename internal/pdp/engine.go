package pdp

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avpdp/internal/audit"
	"github.com/vyrodovalexey/avpdp/internal/observability"
	"github.com/vyrodovalexey/avpdp/internal/pdp/abac"
	"github.com/vyrodovalexey/avpdp/internal/pdp/rbac"
)

// pdpTracer is the OTEL tracer used for evaluation operations.
var pdpTracer = otel.Tracer("avpdp/engine")

// Engine is the policy decision point. It is safe for concurrent use
// from any number of goroutines; evaluations share no mutable state.
type Engine interface {
	// Evaluate evaluates a request and always returns a decision. The
	// engine fails closed: any internal failure yields a deny decision,
	// never an implicit allow.
	Evaluate(ctx context.Context, req *Request) *Decision

	// Reload atomically swaps the engine's policy configuration.
	// In-flight evaluations complete against the configuration they
	// started with.
	Reload(cfg *Config) error

	// Close releases engine resources.
	Close() error
}

// engineState is the immutable bundle an evaluation runs against.
type engineState struct {
	cfg    *Config
	matrix *rbac.Matrix
	abac   abac.Engine
	rules  []Rule
}

// engine implements the Engine interface.
type engine struct {
	state   atomic.Pointer[engineState]
	clock   func() time.Time
	logger  observability.Logger
	metrics *Metrics
	emitter audit.Emitter
}

// EngineOption is a functional option for the engine.
type EngineOption func(*engine)

// WithEngineLogger sets the logger.
func WithEngineLogger(logger observability.Logger) EngineOption {
	return func(e *engine) {
		e.logger = logger.Named("engine")
	}
}

// WithEngineMetrics sets the metrics.
func WithEngineMetrics(metrics *Metrics) EngineOption {
	return func(e *engine) {
		e.metrics = metrics
	}
}

// WithClock sets the wall-clock source. Used by tests to make staleness
// and business-hours checks deterministic.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *engine) {
		e.clock = clock
	}
}

// WithAuditEmitter sets the audit emitter.
func WithAuditEmitter(emitter audit.Emitter) EngineOption {
	return func(e *engine) {
		e.emitter = emitter
	}
}

// New creates a new engine with the given configuration.
func New(cfg *Config, opts ...EngineOption) (Engine, error) {
	e := &engine{
		clock:   time.Now,
		logger:  observability.NopLogger(),
		emitter: audit.NopEmitter(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = NewMetrics("pdp")
	}

	state, err := newEngineState(cfg, e.logger)
	if err != nil {
		return nil, err
	}
	e.state.Store(state)

	return e, nil
}

// newEngineState validates the configuration and builds the immutable
// evaluation state.
func newEngineState(cfg *Config, logger observability.Logger) (*engineState, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	matrix, err := rbac.NewMatrix(cfg.RBACOverrides)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	abacEngine, err := abac.NewEngine(cfg.Policies, abac.WithEngineLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &engineState{
		cfg:    cfg,
		matrix: matrix,
		abac:   abacEngine,
		rules:  newRuleSet(matrix, cfg),
	}, nil
}

// Reload atomically swaps the policy configuration.
func (e *engine) Reload(cfg *Config) error {
	state, err := newEngineState(cfg, e.logger)
	if err != nil {
		return err
	}
	e.state.Store(state)
	e.logger.Info("engine configuration reloaded",
		observability.Int("conditional_policies", len(state.cfg.Policies)),
	)
	return nil
}

// Close releases engine resources.
func (e *engine) Close() error {
	return nil
}

// Evaluate evaluates a request. It never panics and never returns nil:
// any internal failure produces the fail-closed deny decision.
func (e *engine) Evaluate(ctx context.Context, req *Request) (decision *Decision) {
	start := e.clock()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluation panicked, failing closed",
				observability.Any("panic", r),
			)
			decision = e.failClosed(start)
		}
	}()

	if req == nil {
		e.logger.Error("evaluation failed", observability.Error(ErrNilRequest))
		return e.failClosed(start)
	}

	ctx, span := pdpTracer.Start(ctx, "pdp.evaluate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pdp.resource_type", string(req.Resource.Type)),
			attribute.String("pdp.action", string(req.Action.Type)),
		),
	)
	defer span.End()

	state := e.state.Load()
	now := start

	// Normalize inputs before anything reads them.
	normalized := *req
	normalized.Subject = NormalizeSubject(req.Subject)
	normalized.Environment = NormalizeEnvironment(req.Environment, normalized.Subject, state.cfg, now)

	risk := riskScore(&normalized, state.cfg, now)
	trustLevel := classifyTrust(&normalized, risk, state.cfg, now)

	outcome := &policyOutcome{}
	for _, rule := range state.rules {
		outcome.fold(rule.Check(&normalized, trustLevel, now))
	}
	e.foldConditionalPolicies(ctx, state, &normalized, now, outcome)

	effect, reasons, required := buildDecision(outcome, risk)

	decision = &Decision{
		Effect:          effect,
		TrustLevel:      trustLevel,
		RiskScore:       risk,
		Reasons:         reasons,
		RequiredActions: required,
		ExpiresAt:       expiresAt(now, trustLevel, risk),
		Session:         sessionConstraints(trustLevel, risk, &normalized.Resource),
	}
	decision.Audit = buildAuditRecord(&normalized, decision, outcome.Violations, now)

	// Fire-and-forget: a slow or failing audit sink never delays the
	// decision already computed.
	e.emitter.Emit(decision.Audit)

	duration := e.clock().Sub(start)
	e.metrics.RecordDecision(effect, trustLevel, risk, duration)

	span.SetAttributes(
		attribute.String("pdp.effect", string(effect)),
		attribute.String("pdp.trust_level", trustLevel.String()),
		attribute.Float64("pdp.risk_score", risk),
	)

	e.logger.Debug("policy decision",
		observability.String("user_id", normalized.Subject.UserID),
		observability.String("resource_type", string(normalized.Resource.Type)),
		observability.String("action", string(normalized.Action.Type)),
		observability.String("effect", string(effect)),
		observability.String("trust_level", trustLevel.String()),
		observability.Float64("risk_score", risk),
		observability.Duration("duration", duration),
	)

	return decision
}

// foldConditionalPolicies evaluates the operator-defined conditional
// policies and folds their matches into the outcome. A failing policy is
// skipped; the fixed rule set remains the safety net.
func (e *engine) foldConditionalPolicies(ctx context.Context, state *engineState, req *Request, now time.Time, outcome *policyOutcome) {
	if len(state.cfg.Policies) == 0 {
		return
	}

	matches, err := state.abac.Evaluate(ctx, abacRequest(req, now))
	if err != nil {
		e.logger.Warn("conditional policy evaluation failed", observability.Error(err))
		return
	}

	for _, match := range matches {
		result := RuleResult{}
		if match.Reason != "" {
			result.Violations = []string{match.Reason}
		}
		if match.RequiredAction != "" {
			result.Required = []RequiredAction{RequiredAction(match.RequiredAction)}
		}
		switch match.Effect {
		case abac.EffectDeny:
			result.Deny = true
		case abac.EffectChallenge:
			result.Challenge = true
		}
		outcome.fold(result)
	}
}

// abacRequest maps the typed request onto the attribute maps exposed to
// CEL expressions.
func abacRequest(req *Request, now time.Time) *abac.Request {
	subject := map[string]interface{}{
		"user_id":      req.Subject.UserID,
		"org_id":       req.Subject.OrgID,
		"roles":        req.Subject.Roles,
		"device_id":    req.Subject.DeviceID,
		"source_ip":    req.Subject.SourceIP,
		"mfa_verified": req.Subject.MFAVerified,
	}

	resource := map[string]interface{}{
		"type":           string(req.Resource.Type),
		"id":             req.Resource.ID,
		"classification": string(req.Resource.Classification),
		"org_id":         req.Resource.OrgID,
		"requires_cui":   req.Resource.RequiresCUI,
		"sensitivity":    req.Resource.Sensitivity,
	}

	action := map[string]interface{}{
		"type":  string(req.Action.Type),
		"scope": req.Action.Scope,
	}

	environment := map[string]interface{}{
		"network":            string(req.Environment.Network),
		"device_trust_score": req.Environment.DeviceTrustScore,
		"behavior_score":     req.Environment.BehaviorScore,
		"ip_reputation":      req.Environment.ThreatIntel.IPReputation,
		"known_bad_actor":    req.Environment.ThreatIntel.KnownBadActor,
		"geo_risk":           req.Environment.ThreatIntel.GeoRisk,
	}
	if geo := req.Environment.Geolocation; geo != nil {
		environment["country"] = geo.Country
		environment["location_allowed"] = geo.Allowed
	}

	return &abac.Request{
		Subject:     subject,
		Resource:    resource,
		Action:      action,
		Environment: environment,
		Now:         now,
	}
}

// buildAuditRecord constructs the immutable audit record for a decision.
// The subject copy is redacted: it carries no session identifier.
func buildAuditRecord(req *Request, decision *Decision, violations []string, now time.Time) *audit.Record {
	record := audit.NewRecord(now)

	record.Subject = audit.Subject{
		UserID:      req.Subject.UserID,
		OrgID:       req.Subject.OrgID,
		Roles:       append([]string(nil), req.Subject.Roles...),
		DeviceID:    req.Subject.DeviceID,
		SourceIP:    req.Subject.SourceIP,
		UserAgent:   req.Subject.UserAgent,
		MFAVerified: req.Subject.MFAVerified,
	}
	record.Resource = audit.Resource{
		Type:           string(req.Resource.Type),
		ID:             req.Resource.ID,
		Classification: string(req.Resource.Classification),
		Sensitivity:    req.Resource.Sensitivity,
		RequiresCUI:    req.Resource.RequiresCUI,
	}
	record.Action = string(req.Action.Type)
	record.Effect = string(decision.Effect)
	record.TrustLevel = decision.TrustLevel.String()
	record.RiskScore = decision.RiskScore
	record.Violations = append([]string(nil), violations...)

	record.Environment = audit.Environment{
		Network:          string(req.Environment.Network),
		DeviceTrustScore: req.Environment.DeviceTrustScore,
		BehaviorScore:    req.Environment.BehaviorScore,
		IPReputation:     req.Environment.ThreatIntel.IPReputation,
		KnownBadActor:    req.Environment.ThreatIntel.KnownBadActor,
	}
	if geo := req.Environment.Geolocation; geo != nil {
		record.Environment.Country = geo.Country
	}

	return record
}

// failClosed builds the deny decision returned when evaluation itself
// fails. Uncertainty always resolves to denial, never to allowance.
func (e *engine) failClosed(now time.Time) *Decision {
	return &Decision{
		Effect:     EffectDeny,
		TrustLevel: TrustUntrusted,
		RiskScore:  MaxRiskScore,
		Reasons:    []string{ErrEvaluationFailed.Error()},
		ExpiresAt:  now.Add(time.Minute),
		Session: SessionConstraints{
			MaxDuration:     lowTrustMaxDuration,
			ReauthInterval:  lowTrustReauthInterval,
			MonitoringLevel: MonitoringForensic,
		},
	}
}

// Ensure engine implements Engine.
var _ Engine = (*engine)(nil)
