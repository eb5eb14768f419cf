package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avpdp/internal/pdp"
)

// EvaluateRequest is the wire form of an evaluation request. It mirrors
// the engine's request but keeps optional environment snapshots as
// pointers so that absence is distinguishable from zero values.
type EvaluateRequest struct {
	Subject     pdp.Subject         `json:"subject"`
	Resource    pdp.Resource        `json:"resource"`
	Action      pdp.Action          `json:"action"`
	Environment EvaluateEnvironment `json:"environment"`
}

// EvaluateEnvironment is the wire form of the request environment.
type EvaluateEnvironment struct {
	Timestamp        time.Time        `json:"timestamp"`
	Geolocation      *pdp.Geolocation `json:"geolocation,omitempty"`
	Network          pdp.NetworkType  `json:"network"`
	DeviceTrustScore float64          `json:"device_trust_score"`
	BehaviorScore    float64          `json:"behavior_score"`
	ThreatIntel      *pdp.ThreatIntel `json:"threat_intel,omitempty"`
	Compliance       pdp.Compliance   `json:"compliance"`
}

// Validate checks the request fields the engine cannot default.
func (r *EvaluateRequest) Validate() error {
	if r.Subject.UserID == "" {
		return fmt.Errorf("missing required field: subject.user_id")
	}
	if r.Resource.Type == "" {
		return fmt.Errorf("missing required field: resource.type")
	}
	if r.Action.Type == "" {
		return fmt.Errorf("missing required field: action.type")
	}
	return nil
}

// toEngineRequest maps the wire request onto the engine's request form.
// The geolocation allow flag is resolved against the allowed-country
// policy here: callers report where a request came from, policy decides
// whether that location is acceptable. An absent threat intelligence
// snapshot maps to the neutral one.
func (r *EvaluateRequest) toEngineRequest(cfg *pdp.Config) *pdp.Request {
	req := &pdp.Request{
		Subject:  r.Subject,
		Resource: r.Resource,
		Action:   r.Action,
		Environment: pdp.Environment{
			Timestamp:        r.Environment.Timestamp,
			Network:          r.Environment.Network,
			DeviceTrustScore: r.Environment.DeviceTrustScore,
			BehaviorScore:    r.Environment.BehaviorScore,
			Compliance:       r.Environment.Compliance,
		},
	}

	if geo := r.Environment.Geolocation; geo != nil {
		resolved := *geo
		resolved.Allowed = cfg.CountryAllowed(geo.Country)
		req.Environment.Geolocation = &resolved
	}

	if ti := r.Environment.ThreatIntel; ti != nil {
		req.Environment.ThreatIntel = *ti
	} else {
		req.Environment.ThreatIntel = pdp.NeutralThreatIntel()
	}

	return req
}

// handleEvaluate evaluates a request and returns the decision. A
// malformed body is the caller's error and yields 400; everything that
// parses gets a decision, the engine failing closed on its own.
func (s *Server) handleEvaluate(c *gin.Context) {
	start := time.Now()

	var wireReq EvaluateRequest
	if err := c.ShouldBindJSON(&wireReq); err != nil {
		s.metrics.RecordRequest(http.StatusBadRequest, time.Since(start))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := wireReq.Validate(); err != nil {
		s.metrics.RecordRequest(http.StatusBadRequest, time.Since(start))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := wireReq.toEngineRequest(s.engineCfg.Load())
	decision := s.engine.Evaluate(c.Request.Context(), req)

	s.metrics.RecordRequest(http.StatusOK, time.Since(start))
	c.JSON(http.StatusOK, decision)
}
