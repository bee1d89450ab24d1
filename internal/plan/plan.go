// Package plan maps accounts to admission quotas.
//
// A plan names a request limit over a sliding window. Accounts are assigned
// to plans by ID; accounts without an assignment fall back to the default
// plan when one is configured.
package plan

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Plan describes the admission quota applied to an account.
type Plan struct {
	ID        string        `yaml:"id"`
	Name      string        `yaml:"name"`
	Limit     int64         `yaml:"limit"`
	Window    time.Duration `yaml:"-"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// QuotaKey returns the window-store key for an account under this plan.
func (p Plan) QuotaKey(accountID string) string {
	prefix := p.KeyPrefix
	if prefix == "" {
		prefix = "account:"
	}
	return prefix + accountID
}

// Resolver resolves the quota plan for an account.
type Resolver interface {
	Resolve(accountID string) (Plan, bool)
}

// planSpec is the on-disk shape of a plan. Window is milliseconds.
type planSpec struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Limit     int64  `yaml:"limit"`
	WindowMs  int64  `yaml:"window_ms"`
	KeyPrefix string `yaml:"key_prefix"`
}

// plansFile is the on-disk YAML layout of a plan catalog.
type plansFile struct {
	Default  string            `yaml:"default"`
	Plans    []planSpec        `yaml:"plans"`
	Accounts map[string]string `yaml:"accounts"`
}

// StaticResolver resolves plans from a fixed in-memory catalog.
type StaticResolver struct {
	plans       map[string]Plan
	assignments map[string]string
	defaultPlan string
}

// NewStaticResolver builds a resolver from plans, per-account assignments
// (account ID to plan ID) and an optional default plan ID.
func NewStaticResolver(plans []Plan, assignments map[string]string, defaultPlan string) (*StaticResolver, error) {
	byID := make(map[string]Plan, len(plans))
	for _, p := range plans {
		if p.ID == "" {
			return nil, fmt.Errorf("plan with empty ID")
		}
		if p.Window <= 0 {
			return nil, fmt.Errorf("plan %q: window must be positive", p.ID)
		}
		if p.Limit < 0 {
			return nil, fmt.Errorf("plan %q: limit must not be negative", p.ID)
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan ID %q", p.ID)
		}
		byID[p.ID] = p
	}

	if defaultPlan != "" {
		if _, ok := byID[defaultPlan]; !ok {
			return nil, fmt.Errorf("default plan %q not defined", defaultPlan)
		}
	}
	for account, planID := range assignments {
		if _, ok := byID[planID]; !ok {
			return nil, fmt.Errorf("account %q assigned to undefined plan %q", account, planID)
		}
	}

	asn := make(map[string]string, len(assignments))
	for k, v := range assignments {
		asn[k] = v
	}

	return &StaticResolver{
		plans:       byID,
		assignments: asn,
		defaultPlan: defaultPlan,
	}, nil
}

// Load reads a plan catalog from a YAML file.
func Load(path string) (*StaticResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}

	var file plansFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse plan catalog %s: %w", path, err)
	}

	plans := make([]Plan, 0, len(file.Plans))
	for _, spec := range file.Plans {
		plans = append(plans, Plan{
			ID:        spec.ID,
			Name:      spec.Name,
			Limit:     spec.Limit,
			Window:    time.Duration(spec.WindowMs) * time.Millisecond,
			KeyPrefix: spec.KeyPrefix,
		})
	}

	resolver, err := NewStaticResolver(plans, file.Accounts, file.Default)
	if err != nil {
		return nil, fmt.Errorf("invalid plan catalog %s: %w", path, err)
	}
	return resolver, nil
}

// Resolve returns the plan for the given account. Accounts without an
// explicit assignment get the default plan when one is configured.
func (r *StaticResolver) Resolve(accountID string) (Plan, bool) {
	if planID, ok := r.assignments[accountID]; ok {
		return r.plans[planID], true
	}
	if r.defaultPlan != "" {
		return r.plans[r.defaultPlan], true
	}
	return Plan{}, false
}

// Len returns the number of defined plans.
func (r *StaticResolver) Len() int {
	return len(r.plans)
}
