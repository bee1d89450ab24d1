// Package pricing resolves per-model pricing metadata from a YAML catalog.
package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gometer/internal/core"
)

// Resolver resolves pricing metadata for a given model.
// Implementations return false when the model has no pricing entry
// and no default applies.
type Resolver interface {
	Resolve(model string) (core.ModelPricing, bool)
}

// CatalogFile is the on-disk YAML layout of a pricing catalog.
type CatalogFile struct {
	// Default applies to models without an explicit entry. Optional.
	Default *core.ModelPricing `yaml:"default"`

	// Models maps model ID to its pricing entry.
	Models map[string]core.ModelPricing `yaml:"models"`
}

// Catalog is an immutable in-memory pricing catalog.
type Catalog struct {
	entries  map[string]core.ModelPricing
	fallback *core.ModelPricing
}

// NewCatalog builds a catalog from explicit entries and an optional fallback.
func NewCatalog(entries map[string]core.ModelPricing, fallback *core.ModelPricing) *Catalog {
	m := make(map[string]core.ModelPricing, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	var fb *core.ModelPricing
	if fallback != nil {
		cp := *fallback
		fb = &cp
	}
	return &Catalog{entries: m, fallback: fb}
}

// LoadCatalog reads a pricing catalog from a YAML file.
// Environment variables in the file are not expanded.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing catalog: %w", err)
	}

	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pricing catalog %s: %w", path, err)
	}

	catalog := NewCatalog(file.Models, file.Default)
	if err := catalog.validate(); err != nil {
		return nil, fmt.Errorf("invalid pricing catalog %s: %w", path, err)
	}
	return catalog, nil
}

// Resolve returns the pricing entry for the given model, falling back to the
// catalog default when no explicit entry exists.
func (c *Catalog) Resolve(model string) (core.ModelPricing, bool) {
	if p, ok := c.entries[model]; ok {
		return p, true
	}
	if c.fallback != nil {
		return *c.fallback, true
	}
	return core.ModelPricing{}, false
}

// Len returns the number of explicit model entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

func (c *Catalog) validate() error {
	if c.fallback != nil {
		if err := validateEntry("default", *c.fallback); err != nil {
			return err
		}
	}
	for model, entry := range c.entries {
		if err := validateEntry(model, entry); err != nil {
			return err
		}
	}
	return nil
}

func validateEntry(name string, p core.ModelPricing) error {
	switch p.Kind {
	case core.PricingSystem:
		if p.BasePromptCostPerKTokenCents < 0 || p.BaseCompletionCostPerKTokenCents < 0 {
			return fmt.Errorf("entry %q: negative base rate", name)
		}
		if p.MarkupPercent < 0 {
			return fmt.Errorf("entry %q: negative markup", name)
		}
	case core.PricingExternal:
		if p.PromptCostPerKTokenCents < 0 || p.CompletionCostPerKTokenCents < 0 {
			return fmt.Errorf("entry %q: negative rate", name)
		}
	default:
		return fmt.Errorf("entry %q: unknown pricing kind %q", name, p.Kind)
	}
	return nil
}
