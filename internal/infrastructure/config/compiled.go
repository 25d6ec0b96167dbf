package config

import (
	"strings"

	"github.com/GriffinCanCode/methodprobe/internal/errdigest"
	"github.com/GriffinCanCode/methodprobe/internal/trigger"
)

// Compiled is a Config with its hot-path lookups precomputed. It is
// immutable once built; replace it through a Store.
type Compiled struct {
	*Config

	TreePolicy trigger.Policy
	FlatPolicy trigger.Policy
	Errors     errdigest.Filter

	entries      map[string]struct{}
	entryClasses map[string]struct{}
	treePrefixes []string

	flatMethods  map[string]struct{}
	flatClasses  map[string]struct{}
	flatPrefixes []string
}

// Compile validates cfg and precomputes its lookups.
func Compile(cfg *Config) (*Compiled, error) {
	cfg = cfg.Clone()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	treePolicy, err := trigger.Parse(cfg.Tree.Trigger, cfg.Tree.ThresholdMs)
	if err != nil {
		return nil, err
	}
	flatPolicy, err := trigger.Parse(cfg.Flat.Trigger, cfg.Flat.ThresholdMs)
	if err != nil {
		return nil, err
	}

	c := &Compiled{
		Config:       cfg,
		TreePolicy:   treePolicy,
		FlatPolicy:   flatPolicy,
		Errors:       errdigest.NewFilter(cfg.Exception.Include, cfg.Exception.Exclude),
		entries:      toSet(cfg.Tree.EntryMethods),
		entryClasses: make(map[string]struct{}),
		treePrefixes: cfg.Tree.Packages,
		flatMethods:  toSet(cfg.Flat.Methods),
		flatClasses:  toSet(cfg.Flat.Classes),
		flatPrefixes: cfg.Flat.Packages,
	}
	for entry := range c.entries {
		if i := strings.LastIndexByte(entry, '.'); i > 0 {
			c.entryClasses[entry[:i]] = struct{}{}
		}
	}
	return c, nil
}

// MustCompile is Compile for known-good configuration.
func MustCompile(cfg *Config) *Compiled {
	c, err := Compile(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// IsEntry reports whether fullName ("Class.method") starts a new tree.
func (c *Compiled) IsEntry(fullName string) bool {
	_, ok := c.entries[fullName]
	return ok
}

// IncludeInTree reports whether invocations on class may join an active
// tree: classes declaring an entry method always may, others must match a
// configured package prefix.
func (c *Compiled) IncludeInTree(class string) bool {
	if _, ok := c.entryClasses[class]; ok {
		return true
	}
	return hasPrefix(class, c.treePrefixes)
}

// FlatSelects reports whether class.method is logged in flat mode.
func (c *Compiled) FlatSelects(class, method string) bool {
	if !c.Flat.Enabled {
		return false
	}
	if _, ok := c.flatMethods[class+"."+method]; ok {
		return true
	}
	if _, ok := c.flatClasses[class]; ok {
		return true
	}
	return hasPrefix(class, c.flatPrefixes)
}

// CapturesError applies the include/exclude filter.
func (c *Compiled) CapturesError(err error) bool {
	return c.Errors.Captures(err)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}

func hasPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
