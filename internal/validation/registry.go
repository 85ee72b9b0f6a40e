package validation

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// NamedRule is an extension-contributed rule: a name, a pass/fail evaluator
// and a message template rendered with :field/:argN placeholders.
type NamedRule struct {
	Name      string
	Evaluator Evaluator
	Template  string
}

// RuleProvider is implemented by extensions that contribute rules. Discover
// calls Rules() defensively: a provider that panics or returns malformed
// rules is logged and skipped without affecting the others.
type RuleProvider interface {
	Name() string
	Rules() []NamedRule
}

// RegistryStats summarizes registry state for diagnostics.
type RegistryStats struct {
	Registered int      `json:"registered"`
	Failed     int      `json:"failed"`
	Names      []string `json:"names"`
}

// ConstraintRegistry holds extension rules by name. It is owned by the
// application root and handed to validators explicitly; there is no package
// global.
type ConstraintRegistry struct {
	mu     sync.RWMutex
	rules  map[string]NamedRule
	failed int
}

// NewConstraintRegistry creates an empty registry.
func NewConstraintRegistry() *ConstraintRegistry {
	return &ConstraintRegistry{rules: make(map[string]NamedRule)}
}

// Register adds a rule. Re-registering the same name is idempotent: the
// newest definition wins.
func (r *ConstraintRegistry) Register(rule NamedRule) error {
	if rule.Name == "" {
		return fmt.Errorf("constraint registry: rule name must not be empty")
	}
	if rule.Evaluator == nil {
		return fmt.Errorf("constraint registry: rule %q has no evaluator", rule.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.Name] = rule
	return nil
}

// Unregister removes a rule. Unknown names are a no-op.
func (r *ConstraintRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules, name)
}

// Lookup returns the rule registered under name.
func (r *ConstraintRegistry) Lookup(name string) (NamedRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[name]
	return rule, ok
}

// Statistics reports counts and the sorted rule names.
func (r *ConstraintRegistry) Statistics() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.rules))
	for name := range r.rules {
		names = append(names, name)
	}
	sort.Strings(names)

	return RegistryStats{
		Registered: len(r.rules),
		Failed:     r.failed,
		Names:      names,
	}
}

// Discover collects rules from extension providers. A provider failure —
// panic, or a rule missing its name or evaluator — is logged and counted,
// never propagated: broken extensions must not poison the host validator.
func (r *ConstraintRegistry) Discover(providers ...RuleProvider) {
	for _, provider := range providers {
		r.discoverOne(provider)
	}
}

func (r *ConstraintRegistry) discoverOne(provider RuleProvider) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("constraint registry: provider %q panicked, skipping: %v", provider.Name(), rec)
			r.mu.Lock()
			r.failed++
			r.mu.Unlock()
		}
	}()

	for _, rule := range provider.Rules() {
		if err := r.Register(rule); err != nil {
			log.Printf("constraint registry: provider %q: %v, skipping rule", provider.Name(), err)
			r.mu.Lock()
			r.failed++
			r.mu.Unlock()
		}
	}
}
