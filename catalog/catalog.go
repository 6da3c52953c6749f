// Package catalog is the read-only registry of purchasable plans.
//
// The catalog is a snapshot: admin edits build a complete new plan list and swap it in
// with Replace, so readers always see either the old or the new catalog.
package catalog

import (
	"fmt"
	"os"
	"slices"
	"sync/atomic"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"go-hotspot/billing"
)

type Catalog struct {
	snapshot atomic.Pointer[snapshot]
}

type snapshot struct {
	byID  map[string]Plan
	plans []Plan
}

func New(plans []Plan) (*Catalog, error) {
	s, err := newSnapshot(plans)
	if err != nil {
		return nil, err
	}
	c := &Catalog{}
	c.snapshot.Store(s)
	return c, nil
}

// Default returns the catalog seeded with the standard plans.
func Default() *Catalog {
	c, err := New(defaultPlans())
	if err != nil {
		panic(err)
	}
	return c
}

type file struct {
	Plans []Plan `yaml:"plans"`
}

// LoadFile reads a YAML catalog of the form `plans: [...]`.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plans file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse plans file: %w", err)
	}

	return New(f.Plans)
}

func (c *Catalog) Get(id string) (Plan, error) {
	p, ok := c.snapshot.Load().byID[id]
	if !ok || p.Inactive {
		return Plan{}, fmt.Errorf("%w: %q", billing.ErrInvalidPlan, id)
	}
	return p, nil
}

// List returns the active plans, shortest first.
func (c *Catalog) List() []Plan {
	return lo.Filter(c.snapshot.Load().plans, func(p Plan, _ int) bool {
		return !p.Inactive
	})
}

// Replace validates plans and swaps them in as the new effective catalog.
func (c *Catalog) Replace(plans []Plan) error {
	s, err := newSnapshot(plans)
	if err != nil {
		return err
	}
	c.snapshot.Store(s)
	return nil
}

func newSnapshot(plans []Plan) (*snapshot, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: catalog must contain at least one plan", billing.ErrInvalidInput)
	}

	s := &snapshot{byID: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", billing.ErrInvalidInput, err)
		}
		if _, dup := s.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate plan id %s", billing.ErrInvalidInput, p.ID)
		}
		s.byID[p.ID] = p
	}

	s.plans = slices.Clone(plans)
	slices.SortStableFunc(s.plans, func(a, b Plan) int {
		return a.DurationHours - b.DurationHours
	})
	return s, nil
}
