package approval

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rioja-cuida/approval-engine/generic"
	"github.com/rioja-cuida/approval-engine/timeoff"
)

// =============================================================================
// DEFAULT POLICIES
// =============================================================================

// DefaultEscalationDays is the step window when no matched rule sets one.
const DefaultEscalationDays = 3

// DefaultPolicies returns the built-in approval chain.
//
//	vacation  1-5 days    supervisor
//	vacation  6-15 days   supervisor, hr
//	vacation  16+ days    supervisor, hr, director
//	personalDay           supervisor
//	leave                 hr, director
//	shift-change          supervisor
//	anything from "Dirección" also needs the ceo
func DefaultPolicies() []Policy {
	return []Policy{
		{
			ID:     "standard",
			Name:   "Standard approval chain",
			Active: true,
			Rules: []Rule{
				{ID: "vacation-short", RequestType: timeoff.TypeVacation, MaxDays: 5,
					RequiredApprovers: []Level{LevelSupervisor}, EscalationDays: 3},
				{ID: "vacation-medium", RequestType: timeoff.TypeVacation, MinDays: 6, MaxDays: 15,
					RequiredApprovers: []Level{LevelSupervisor, LevelHR}, EscalationDays: 3},
				{ID: "vacation-long", RequestType: timeoff.TypeVacation, MinDays: 16,
					RequiredApprovers: []Level{LevelSupervisor, LevelHR, LevelDirector}, EscalationDays: 3},
				{ID: "personal-day", RequestType: timeoff.TypePersonalDay,
					RequiredApprovers: []Level{LevelSupervisor}, EscalationDays: 3},
				{ID: "leave", RequestType: timeoff.TypeLeave,
					RequiredApprovers: []Level{LevelHR, LevelDirector}, EscalationDays: 3},
				{ID: "shift-change", RequestType: timeoff.TypeShiftChange,
					RequiredApprovers: []Level{LevelSupervisor}, EscalationDays: 3},
			},
		},
		{
			ID:     "management",
			Name:   "Management department",
			Active: true,
			Rules: []Rule{
				{ID: "management-any", RequestType: AnyRequestType, Department: "Dirección",
					RequiredApprovers: []Level{LevelCEO}, EscalationDays: 3},
			},
		},
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks a policy's shape.
func (p Policy) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: policy id is required", ErrInvalidPolicy)
	}
	seen := make(map[string]bool, len(p.Rules))
	for i, r := range p.Rules {
		if r.ID == "" {
			return fmt.Errorf("%w: policy %s rule %d has no id", ErrInvalidPolicy, p.ID, i)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: policy %s has duplicate rule id %s", ErrInvalidPolicy, p.ID, r.ID)
		}
		seen[r.ID] = true
		if err := r.Validate(); err != nil {
			return fmt.Errorf("policy %s: %w", p.ID, err)
		}
	}
	return nil
}

// Validate checks a rule's shape.
func (r Rule) Validate() error {
	if r.RequestType != AnyRequestType {
		if _, err := timeoff.ParseRequestType(string(r.RequestType)); err != nil {
			return fmt.Errorf("%w: rule %s: %v", ErrInvalidPolicy, r.ID, err)
		}
	}
	if len(r.RequiredApprovers) == 0 {
		return fmt.Errorf("%w: rule %s requires no approvers", ErrInvalidPolicy, r.ID)
	}
	for _, l := range r.RequiredApprovers {
		if !l.Valid() {
			return fmt.Errorf("%w: rule %s has invalid level %d", ErrInvalidPolicy, r.ID, int(l))
		}
	}
	if r.MinDays < 0 || r.MaxDays < 0 || r.EscalationDays < 0 {
		return fmt.Errorf("%w: rule %s has a negative bound", ErrInvalidPolicy, r.ID)
	}
	if r.MinDays > 0 && r.MaxDays > 0 && r.MinDays > r.MaxDays {
		return fmt.Errorf("%w: rule %s has min days %d above max days %d", ErrInvalidPolicy, r.ID, r.MinDays, r.MaxDays)
	}
	return nil
}

// =============================================================================
// POLICY STORE - In-memory policy set injected into the engine
// =============================================================================

// PolicySource supplies the policies the matcher reads.
type PolicySource interface {
	Active() []Policy
}

// PolicyStore holds the current policy set. Safe for concurrent use.
type PolicyStore struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewPolicyStore creates a store holding the given policies. Invalid
// policies cause an error.
func NewPolicyStore(policies ...Policy) (*PolicyStore, error) {
	s := &PolicyStore{policies: make(map[string]Policy)}
	if err := s.Replace(policies); err != nil {
		return nil, err
	}
	return s, nil
}

// Active returns active policies ordered by id.
func (s *PolicyStore) Active() []Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Policy
	for _, p := range s.policies {
		if p.Active {
			out = append(out, clonePolicy(p))
		}
	}
	sortPolicies(out)
	return out
}

// List returns every policy ordered by id.
func (s *PolicyStore) List() []Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, clonePolicy(p))
	}
	sortPolicies(out)
	return out
}

// Get returns a policy by id.
func (s *PolicyStore) Get(id string) (Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %s", generic.ErrPolicyNotFound, id)
	}
	return clonePolicy(p), nil
}

// Upsert adds or replaces one policy.
func (s *PolicyStore) Upsert(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = clonePolicy(p)
	return nil
}

// Replace swaps the whole policy set. Nothing changes if any policy is invalid.
func (s *PolicyStore) Replace(policies []Policy) error {
	next := make(map[string]Policy, len(policies))
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return err
		}
		next[p.ID] = clonePolicy(p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies = next
	return nil
}

func sortPolicies(ps []Policy) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}

func clonePolicy(p Policy) Policy {
	out := p
	out.Rules = make([]Rule, len(p.Rules))
	for i, r := range p.Rules {
		out.Rules[i] = r
		out.Rules[i].RequiredApprovers = append([]Level(nil), r.RequiredApprovers...)
	}
	return out
}
