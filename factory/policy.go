/*
Package factory converts JSON approval policy documents into
approval.Policy values and back.

PURPOSE:
  Policies are configuration. HR edits them as JSON (admin endpoint or a
  file named by approval.policies_file) and the factory turns them into
  validated Go structs the engine can match against.

JSON SCHEMA:
  {
    "id": "standard",
    "name": "Standard approval chain",
    "is_active": true,
    "rules": [
      {
        "id": "vacation-medium",
        "request_type": "vacation",      // or "*" for any type
        "department": "",                // optional exact match
        "min_amount": 6,                 // optional, vacation day count
        "max_amount": 15,                // optional
        "required_approvers": ["supervisor", "hr"],
        "escalation_days": 3             // optional
      }
    ]
  }

  A document may also be a JSON array of policies.

USAGE:
  f := factory.NewApprovalPolicyFactory()
  policies, err := f.ParsePolicies(data)
  err = policyStore.Replace(policies)

SEE ALSO:
  - approval/types.go:    Policy and Rule
  - approval/policies.go: Validation and defaults
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rioja-cuida/approval-engine/approval"
	"github.com/rioja-cuida/approval-engine/timeoff"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of an approval policy.
type PolicyJSON struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Active *bool      `json:"is_active,omitempty"` // default true
	Rules  []RuleJSON `json:"rules"`
}

// RuleJSON is the JSON representation of an approval rule.
type RuleJSON struct {
	ID                string   `json:"id"`
	RequestType       string   `json:"request_type"`
	Department        string   `json:"department,omitempty"`
	MinAmount         *int     `json:"min_amount,omitempty"`
	MaxAmount         *int     `json:"max_amount,omitempty"`
	RequiredApprovers []string `json:"required_approvers"`
	EscalationDays    *int     `json:"escalation_days,omitempty"`
}

// =============================================================================
// APPROVAL POLICY FACTORY
// =============================================================================

// ApprovalPolicyFactory converts JSON policies to approval.Policy.
type ApprovalPolicyFactory struct{}

// NewApprovalPolicyFactory creates a new factory.
func NewApprovalPolicyFactory() *ApprovalPolicyFactory {
	return &ApprovalPolicyFactory{}
}

// ParsePolicy parses a single JSON policy.
func (f *ApprovalPolicyFactory) ParsePolicy(data []byte) (approval.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return approval.Policy{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// ParsePolicies parses either one policy object or an array of them.
func (f *ApprovalPolicyFactory) ParsePolicies(data []byte) ([]approval.Policy, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		p, err := f.ParsePolicy(trimmed)
		if err != nil {
			return nil, err
		}
		return []approval.Policy{p}, nil
	}

	var pjs []PolicyJSON
	if err := json.Unmarshal(trimmed, &pjs); err != nil {
		return nil, fmt.Errorf("failed to parse policies JSON: %w", err)
	}
	policies := make([]approval.Policy, 0, len(pjs))
	seen := make(map[string]bool, len(pjs))
	for _, pj := range pjs {
		p, err := f.FromJSON(pj)
		if err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("%w: duplicate policy id %s", approval.ErrInvalidPolicy, p.ID)
		}
		seen[p.ID] = true
		policies = append(policies, p)
	}
	return policies, nil
}

// LoadFile reads policies from a JSON file.
func (f *ApprovalPolicyFactory) LoadFile(path string) ([]approval.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policies file: %w", err)
	}
	return f.ParsePolicies(data)
}

// FromJSON converts a PolicyJSON into a validated approval.Policy.
func (f *ApprovalPolicyFactory) FromJSON(pj PolicyJSON) (approval.Policy, error) {
	policy := approval.Policy{
		ID:     pj.ID,
		Name:   pj.Name,
		Active: pj.Active == nil || *pj.Active,
		Rules:  make([]approval.Rule, 0, len(pj.Rules)),
	}

	for _, rj := range pj.Rules {
		rule, err := parseRule(rj)
		if err != nil {
			return approval.Policy{}, fmt.Errorf("policy %s: %w", pj.ID, err)
		}
		policy.Rules = append(policy.Rules, rule)
	}

	if err := policy.Validate(); err != nil {
		return approval.Policy{}, err
	}
	return policy, nil
}

// ToJSON converts a policy back to its JSON form.
func (f *ApprovalPolicyFactory) ToJSON(p approval.Policy) PolicyJSON {
	active := p.Active
	pj := PolicyJSON{
		ID:     p.ID,
		Name:   p.Name,
		Active: &active,
		Rules:  make([]RuleJSON, 0, len(p.Rules)),
	}
	for _, r := range p.Rules {
		rj := RuleJSON{
			ID:                r.ID,
			RequestType:       string(r.RequestType),
			Department:        r.Department,
			MinAmount:         optionalInt(r.MinDays),
			MaxAmount:         optionalInt(r.MaxDays),
			EscalationDays:    optionalInt(r.EscalationDays),
			RequiredApprovers: make([]string, len(r.RequiredApprovers)),
		}
		for i, l := range r.RequiredApprovers {
			rj.RequiredApprovers[i] = l.String()
		}
		pj.Rules = append(pj.Rules, rj)
	}
	return pj
}

// =============================================================================
// HELPERS
// =============================================================================

func parseRule(rj RuleJSON) (approval.Rule, error) {
	rule := approval.Rule{
		ID:          rj.ID,
		RequestType: parseRequestType(rj.RequestType),
		Department:  rj.Department,
	}
	if rj.MinAmount != nil {
		rule.MinDays = *rj.MinAmount
	}
	if rj.MaxAmount != nil {
		rule.MaxDays = *rj.MaxAmount
	}
	if rj.EscalationDays != nil {
		rule.EscalationDays = *rj.EscalationDays
	}
	for _, name := range rj.RequiredApprovers {
		level, err := approval.ParseLevel(name)
		if err != nil {
			return approval.Rule{}, fmt.Errorf("%w: rule %s: %v", approval.ErrInvalidPolicy, rj.ID, err)
		}
		rule.RequiredApprovers = append(rule.RequiredApprovers, level)
	}
	return rule, nil
}

// parseRequestType accepts the canonical names, "*" and "any".
func parseRequestType(s string) timeoff.RequestType {
	switch s {
	case "*", "any":
		return approval.AnyRequestType
	case "personal_day", "personal-day":
		return timeoff.TypePersonalDay
	case "shift_change":
		return timeoff.TypeShiftChange
	}
	return timeoff.RequestType(s)
}

func optionalInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
