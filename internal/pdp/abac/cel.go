// Package abac implements operator-defined conditional policies on top
// of the fixed policy rule set. Conditions are CEL expressions over the
// subject, resource, action, and environment attributes; a matching
// policy can add violations and required actions or force a deny or
// challenge, but it can never relax a decision the fixed rules made.
package abac

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/vyrodovalexey/avpdp/internal/observability"
)

// Policy effects a conditional policy may request.
const (
	// EffectDeny marks the request as a hard deny when the condition
	// matches.
	EffectDeny = "deny"

	// EffectChallenge requires additional verification when the
	// condition matches.
	EffectChallenge = "challenge"
)

// Policy is an operator-defined conditional policy.
type Policy struct {
	// Name uniquely identifies the policy.
	Name string `yaml:"name" json:"name"`

	// Expression is the CEL condition. When it evaluates to true the
	// policy matches.
	Expression string `yaml:"expression" json:"expression"`

	// Effect is "deny" or "challenge".
	Effect string `yaml:"effect" json:"effect"`

	// Reason is the violation reason recorded when the policy matches.
	Reason string `yaml:"reason" json:"reason"`

	// RequiredAction optionally names a follow-up action to require.
	RequiredAction string `yaml:"requiredAction" json:"requiredAction"`
}

// Validate validates the policy.
func (p *Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy name is required")
	}
	if p.Expression == "" {
		return fmt.Errorf("policy %q: expression is required", p.Name)
	}
	if p.Effect != EffectDeny && p.Effect != EffectChallenge {
		return fmt.Errorf("policy %q: effect must be %q or %q", p.Name, EffectDeny, EffectChallenge)
	}
	return nil
}

// Request carries the evaluation attributes exposed to CEL expressions.
type Request struct {
	// Subject contains subject attributes.
	Subject map[string]interface{}

	// Resource contains resource attributes.
	Resource map[string]interface{}

	// Action contains action attributes.
	Action map[string]interface{}

	// Environment contains environment attributes.
	Environment map[string]interface{}

	// Now is the evaluation time exposed as the CEL "now" variable.
	Now time.Time
}

// Match is the result of a matched conditional policy.
type Match struct {
	// Policy is the name of the matched policy.
	Policy string

	// Effect is the requested effect.
	Effect string

	// Reason is the violation reason.
	Reason string

	// RequiredAction is the follow-up action to require, if any.
	RequiredAction string
}

// Engine evaluates conditional policies.
type Engine interface {
	// Evaluate returns the matches for the request, in policy order.
	// Policies whose expression fails to evaluate are skipped; the fixed
	// rule set remains the safety net.
	Evaluate(ctx context.Context, req *Request) ([]Match, error)

	// Policies returns the configured policies.
	Policies() []Policy
}

// celEngine implements Engine using compiled CEL programs.
type celEngine struct {
	logger observability.Logger

	mu       sync.RWMutex
	policies []Policy
	programs map[string]cel.Program
	env      *cel.Env
}

// EngineOption is a functional option for the engine.
type EngineOption func(*celEngine)

// WithEngineLogger sets the logger.
func WithEngineLogger(logger observability.Logger) EngineOption {
	return func(e *celEngine) {
		e.logger = logger.Named("abac")
	}
}

// NewEngine creates an engine with the given policies compiled.
func NewEngine(policies []Policy, opts ...EngineOption) (Engine, error) {
	e := &celEngine{
		logger:   observability.NopLogger(),
		policies: make([]Policy, 0, len(policies)),
		programs: make(map[string]cel.Program),
	}

	for _, opt := range opts {
		opt(e)
	}

	env, err := newCELEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	e.env = env

	for _, policy := range policies {
		if err := e.addPolicy(policy); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// newCELEnvironment declares the variables conditional policies may use.
func newCELEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("subject", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("resource", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("action", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("environment", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("now", cel.TimestampType),
	)
}

// addPolicy validates, compiles, and stores a policy.
func (e *celEngine) addPolicy(policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	ast, issues := e.env.Compile(policy.Expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("policy %q: failed to compile expression: %w", policy.Name, issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return fmt.Errorf("policy %q: failed to create program: %w", policy.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = append(e.policies, policy)
	e.programs[policy.Name] = program
	return nil
}

// Evaluate evaluates all policies against the request.
func (e *celEngine) Evaluate(_ context.Context, req *Request) ([]Match, error) {
	e.mu.RLock()
	policies := e.policies
	programs := e.programs
	e.mu.RUnlock()

	vars := map[string]interface{}{
		"subject":     req.Subject,
		"resource":    req.Resource,
		"action":      req.Action,
		"environment": req.Environment,
		"now":         req.Now,
	}

	var matches []Match
	for _, policy := range policies {
		program, ok := programs[policy.Name]
		if !ok {
			continue
		}

		out, _, err := program.Eval(vars)
		if err != nil {
			e.logger.Warn("conditional policy evaluation failed",
				observability.String("policy", policy.Name),
				observability.Error(err),
			)
			continue
		}

		matched, ok := out.Value().(bool)
		if !ok || !matched {
			continue
		}

		matches = append(matches, Match{
			Policy:         policy.Name,
			Effect:         policy.Effect,
			Reason:         policy.Reason,
			RequiredAction: policy.RequiredAction,
		})
	}

	return matches, nil
}

// Policies returns the configured policies.
func (e *celEngine) Policies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]Policy, len(e.policies))
	copy(result, e.policies)
	return result
}

// Ensure celEngine implements Engine.
var _ Engine = (*celEngine)(nil)
