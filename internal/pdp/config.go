package pdp

import (
	"fmt"
	"strings"
	"time"

	"github.com/vyrodovalexey/avpdp/internal/pdp/abac"
	"github.com/vyrodovalexey/avpdp/internal/pdp/rbac"
)

// Configuration defaults.
const (
	// DefaultBusinessHoursStart is the first business hour (inclusive).
	DefaultBusinessHoursStart = 6

	// DefaultBusinessHoursEnd is the last business hour (exclusive).
	DefaultBusinessHoursEnd = 22

	// DefaultSessionStaleness is how old an authentication may be before
	// the session counts as stale.
	DefaultSessionStaleness = time.Hour

	// DefaultDeviceTrust is the device trust score substituted when no
	// device identifier is known.
	DefaultDeviceTrust = 30
)

// Config holds the engine's immutable policy configuration. All fields
// are data, not code: they can be hot-reloaded without rebuilding the
// service. The evaluation semantics themselves are fixed.
type Config struct {
	// BusinessHoursStart is the first hour (local time, inclusive) at
	// which admin actions do not require a step-up challenge.
	BusinessHoursStart int `yaml:"businessHoursStart" json:"businessHoursStart"`

	// BusinessHoursEnd is the hour (exclusive) at which admin actions
	// start requiring a step-up challenge again.
	BusinessHoursEnd int `yaml:"businessHoursEnd" json:"businessHoursEnd"`

	// SessionStaleness is the maximum authentication age before the
	// session counts as stale.
	SessionStaleness time.Duration `yaml:"sessionStaleness" json:"sessionStaleness"`

	// AllowedCountries lists country codes considered allowed locations.
	// Consumed by the environment builder; the rules only read the
	// resolved Allowed flag.
	AllowedCountries []string `yaml:"allowedCountries" json:"allowedCountries"`

	// DefaultDeviceTrust is substituted for the device trust score when
	// the subject presents no device identifier and no score was
	// resolved.
	DefaultDeviceTrust float64 `yaml:"defaultDeviceTrust" json:"defaultDeviceTrust"`

	// RBACOverrides replaces the grant set of the roles it names.
	RBACOverrides map[string]rbac.Grants `yaml:"rbacOverrides" json:"rbacOverrides"`

	// Policies are operator-defined conditional policies evaluated after
	// the fixed rule set.
	Policies []abac.Policy `yaml:"policies" json:"policies"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		BusinessHoursStart: DefaultBusinessHoursStart,
		BusinessHoursEnd:   DefaultBusinessHoursEnd,
		SessionStaleness:   DefaultSessionStaleness,
		DefaultDeviceTrust: DefaultDeviceTrust,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BusinessHoursStart < 0 || c.BusinessHoursStart > 23 {
		return fmt.Errorf("businessHoursStart must be in [0,23], got %d", c.BusinessHoursStart)
	}
	if c.BusinessHoursEnd < 0 || c.BusinessHoursEnd > 24 {
		return fmt.Errorf("businessHoursEnd must be in [0,24], got %d", c.BusinessHoursEnd)
	}
	if c.BusinessHoursStart >= c.BusinessHoursEnd {
		return fmt.Errorf("businessHoursStart (%d) must be before businessHoursEnd (%d)",
			c.BusinessHoursStart, c.BusinessHoursEnd)
	}
	if c.SessionStaleness < 0 {
		return fmt.Errorf("sessionStaleness must not be negative")
	}
	if c.DefaultDeviceTrust < 0 || c.DefaultDeviceTrust > 100 {
		return fmt.Errorf("defaultDeviceTrust must be in [0,100], got %v", c.DefaultDeviceTrust)
	}
	for i := range c.Policies {
		if err := c.Policies[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GetEffectiveSessionStaleness returns the staleness threshold,
// defaulting when unset.
func (c *Config) GetEffectiveSessionStaleness() time.Duration {
	if c.SessionStaleness <= 0 {
		return DefaultSessionStaleness
	}
	return c.SessionStaleness
}

// GetEffectiveDefaultDeviceTrust returns the default device trust score,
// defaulting when unset.
func (c *Config) GetEffectiveDefaultDeviceTrust() float64 {
	if c.DefaultDeviceTrust <= 0 {
		return DefaultDeviceTrust
	}
	return c.DefaultDeviceTrust
}

// CountryAllowed reports whether the country is on the allowed-location
// list. An empty list allows every location.
func (c *Config) CountryAllowed(country string) bool {
	if len(c.AllowedCountries) == 0 {
		return true
	}
	for _, allowed := range c.AllowedCountries {
		if strings.EqualFold(allowed, country) {
			return true
		}
	}
	return false
}

// withinBusinessHours reports whether the given time falls inside the
// configured business hours.
func (c *Config) withinBusinessHours(t time.Time) bool {
	hour := t.Hour()
	return hour >= c.BusinessHoursStart && hour < c.BusinessHoursEnd
}
