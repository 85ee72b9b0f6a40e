package validation

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mitchellh/mapstructure"
)

// Errors maps field names to their failure messages. Validation passes iff
// the map is empty.
type Errors map[string][]string

// Valid reports whether no field failed.
func (e Errors) Valid() bool { return len(e) == 0 }

func (e Errors) add(field, message string) {
	e[field] = append(e[field], message)
}

// Envelope renders the wire shape {"errors": {...}}.
func (e Errors) Envelope() ([]byte, error) {
	return json.Marshal(map[string]Errors{"errors": e})
}

// Validator sanitizes and validates objects against compiled descriptors.
// Rule failures come back as an error map, never as a Go error; the error
// return covers misuse only (unknown rules, non-struct input).
type Validator struct {
	mu         sync.RWMutex
	rules      map[string]RuleFunc
	sanitizers map[string]Sanitizer
	registry   *ConstraintRegistry

	cache        *lru.Cache[reflect.Type, *Descriptor]
	cacheEnabled bool
}

// NewValidator builds a validator with the built-in rule and sanitizer sets.
// registry may be nil when no extension rules are in play. cacheEnabled
// keeps compiled descriptors across calls; disable it in dev so tag edits
// are picked up.
func NewValidator(registry *ConstraintRegistry, cacheSize int, cacheEnabled bool) (*Validator, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[reflect.Type, *Descriptor](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create descriptor cache: %w", err)
	}

	return &Validator{
		rules:        builtinRules(),
		sanitizers:   builtinSanitizers(),
		registry:     registry,
		cache:        cache,
		cacheEnabled: cacheEnabled,
	}, nil
}

// AddRule registers a custom rule for the lifetime of this validator.
// Later registrations under the same name replace earlier ones.
func (v *Validator) AddRule(name string, eval Evaluator, messageTemplate string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rules[name] = WrapEvaluator(eval, messageTemplate)
}

// AddSanitizer registers a custom filter.
func (v *Validator) AddSanitizer(name string, s Sanitizer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sanitizers[name] = s
}

// PurgeDescriptors drops the compiled-descriptor cache.
func (v *Validator) PurgeDescriptors() {
	v.cache.Purge()
}

func (v *Validator) lookupRule(name string) (RuleFunc, bool) {
	v.mu.RLock()
	rule, ok := v.rules[name]
	v.mu.RUnlock()
	if ok {
		return rule, true
	}
	if v.registry != nil {
		if named, found := v.registry.Lookup(name); found {
			return WrapEvaluator(named.Evaluator, named.Template), true
		}
	}
	return nil, false
}

func (v *Validator) lookupSanitizer(name string) (Sanitizer, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.sanitizers[name]
	return s, ok
}

// descriptor compiles (or recalls) the descriptor for a struct type.
func (v *Validator) descriptor(t reflect.Type) (*Descriptor, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if v.cacheEnabled {
		if desc, ok := v.cache.Get(t); ok {
			return desc, nil
		}
	}
	desc, err := CompileStruct(t)
	if err != nil {
		return nil, err
	}
	if v.cacheEnabled {
		v.cache.Add(t, desc)
	}
	return desc, nil
}

// Validate runs the full pipeline over a struct pointer: sanitizers mutate
// the struct in place, rules collect into the returned error map.
func (v *Validator) Validate(obj any) (Errors, error) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("validate target must be a non-nil struct pointer, got %T", obj)
	}

	desc, err := v.descriptor(rv.Type())
	if err != nil {
		return nil, err
	}

	data := structToMap(rv.Elem())
	errs, err := v.ValidateMap(data, desc)
	if err != nil {
		return nil, err
	}

	// Write sanitized values back onto the struct.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           obj,
		TagName:          "json",
		WeaklyTypedInput: true,
		ZeroFields:       false,
	})
	if err != nil {
		return nil, fmt.Errorf("build writeback decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("write back sanitized values: %w", err)
	}

	return errs, nil
}

// ValidateMap runs the pipeline over loose map data. Sanitizers mutate the
// map in place. A field named by the descriptor but absent from the map is
// uninitialized and fails without running its rules.
func (v *Validator) ValidateMap(data map[string]any, desc *Descriptor) (Errors, error) {
	errs := Errors{}

	for _, field := range desc.Fields {
		value, present := data[field.Name]
		if !present {
			errs.add(field.Name, fmt.Sprintf("%s is not initialized", field.Name))
			continue
		}

		for _, name := range field.Sanitizers {
			s, ok := v.lookupSanitizer(name)
			if !ok {
				return nil, fmt.Errorf("sanitizer %q: %w", name, ErrUnknownRule)
			}
			value = s(value)
		}
		data[field.Name] = value

		if err := v.applyRules(errs, field.Name, value, field.Rules); err != nil {
			return nil, err
		}
	}

	if err := v.applyObjectConstraints(errs, data, desc); err != nil {
		return nil, err
	}
	return errs, nil
}

func (v *Validator) applyRules(errs Errors, field string, value any, rules []Rule) error {
	for _, rule := range rules {
		fn, ok := v.lookupRule(rule.Name)
		if !ok {
			return fmt.Errorf("rule %q: %w", rule.Name, ErrUnknownRule)
		}
		if ok, message := fn(field, value, rule.Args); !ok {
			errs.add(field, message)
		}
	}
	return nil
}

func (v *Validator) applyObjectConstraints(errs Errors, data map[string]any, desc *Descriptor) error {
	for _, fm := range desc.FieldsMatch {
		a := stringValue(data[fm.A])
		b := stringValue(data[fm.B])
		if a == "" && b == "" {
			continue
		}
		matched := a == b
		if !fm.CaseSensitive {
			matched = strings.EqualFold(a, b)
		}
		if !matched {
			errs.add(fm.B, fmt.Sprintf("%s must match %s.", fm.B, fm.A))
		}
	}

	for _, w := range desc.When {
		gate, want := stringValue(data[w.Field]), stringValue(w.Equals)
		if gate != want {
			continue
		}
		for field, rules := range w.Then {
			if err := v.applyRules(errs, field, data[field], rules); err != nil {
				return err
			}
		}
	}

	for _, each := range desc.Each {
		items := reflect.ValueOf(data[each.Field])
		if !items.IsValid() || (items.Kind() != reflect.Slice && items.Kind() != reflect.Array) {
			continue
		}
		for i := 0; i < items.Len(); i++ {
			element := fmt.Sprintf("%s.%d", each.Field, i)
			if err := v.applyRules(errs, element, items.Index(i).Interface(), each.Rules); err != nil {
				return err
			}
		}
	}

	return nil
}

// structToMap projects a struct's exported fields into loose map data, keyed
// the same way the descriptor compiler keys them.
func structToMap(rv reflect.Value) map[string]any {
	t := rv.Type()
	data := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		fv := rv.Field(i)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				data[fieldName(sf)] = nil
				continue
			}
			fv = fv.Elem()
		}
		data[fieldName(sf)] = fv.Interface()
	}
	return data
}

func stringValue(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := scalarString(value); ok {
		return s
	}
	return fmt.Sprint(value)
}
