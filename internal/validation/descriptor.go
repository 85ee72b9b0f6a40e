package validation

import (
	"fmt"
	"reflect"
	"strings"
)

// Rule is one compiled rule tag, e.g. min:3 becomes {Name: "min", Args: ["3"]}.
type Rule struct {
	Name string
	Args []string
}

// FieldDescriptor carries one field's sanitizers and rules in declaration
// order.
type FieldDescriptor struct {
	Name       string
	Sanitizers []string
	Rules      []Rule
}

// FieldsMatch requires two fields to hold the same value. Both empty passes.
type FieldsMatch struct {
	A             string
	B             string
	CaseSensitive bool
}

// When applies nested field rules only while the gate field equals the given
// value.
type When struct {
	Field  string
	Equals any
	Then   map[string][]Rule
}

// Each applies a nested rule set to every element of an array field.
type Each struct {
	Field string
	Rules []Rule
}

// Descriptor is the compiled constraint tree for one object shape.
type Descriptor struct {
	Name        string
	Fields      []FieldDescriptor
	FieldsMatch []FieldsMatch
	When        []When
	Each        []Each
}

// ObjectConstrained lets a struct contribute object-level constraints beyond
// what field tags can express.
type ObjectConstrained interface {
	ObjectConstraints() ObjectConstraints
}

// ObjectConstraints groups the object-level metadata of a descriptor.
type ObjectConstraints struct {
	FieldsMatch []FieldsMatch
	When        []When
	Each        []Each
}

// ParseRules compiles a comma-separated rule list ("required,min:3") into
// rule records. Arguments after the colon keep their own commas, so
// "in:a,b,c" parses as one rule.
func ParseRules(spec string) []Rule {
	if spec == "" {
		return nil
	}

	var rules []Rule
	for _, part := range splitRuleList(spec) {
		name, argstr, hasArgs := strings.Cut(part, ":")
		rule := Rule{Name: strings.TrimSpace(name)}
		if hasArgs {
			for _, arg := range strings.Split(argstr, ",") {
				rule.Args = append(rule.Args, strings.TrimSpace(arg))
			}
		}
		if rule.Name != "" {
			rules = append(rules, rule)
		}
	}
	return rules
}

// splitRuleList splits on commas that separate rules, not commas inside a
// rule's argument list: "required,between:1,9" is two rules because "9" has
// no rule-name shape only when the previous rule took arguments.
func splitRuleList(spec string) []string {
	raw := strings.Split(spec, ",")
	var parts []string
	for _, piece := range raw {
		if len(parts) > 0 && strings.Contains(parts[len(parts)-1], ":") && !strings.Contains(piece, ":") {
			// Continuation of the previous rule's argument list.
			parts[len(parts)-1] += "," + piece
			continue
		}
		parts = append(parts, piece)
	}
	return parts
}

// CompileStruct builds a descriptor from a struct type's `validate` and
// `sanitize` tags. Field names follow the json tag when present.
func CompileStruct(t reflect.Type) (*Descriptor, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot compile descriptor for %s: not a struct", t)
	}

	desc := &Descriptor{Name: t.String()}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		validateTag := sf.Tag.Get("validate")
		sanitizeTag := sf.Tag.Get("sanitize")
		if validateTag == "" && sanitizeTag == "" {
			continue
		}

		field := FieldDescriptor{
			Name:  fieldName(sf),
			Rules: ParseRules(validateTag),
		}
		if sanitizeTag != "" {
			for _, s := range strings.Split(sanitizeTag, ",") {
				if s = strings.TrimSpace(s); s != "" {
					field.Sanitizers = append(field.Sanitizers, s)
				}
			}
		}
		desc.Fields = append(desc.Fields, field)
	}

	if oc, ok := reflect.New(t).Interface().(ObjectConstrained); ok {
		constraints := oc.ObjectConstraints()
		desc.FieldsMatch = constraints.FieldsMatch
		desc.When = constraints.When
		desc.Each = constraints.Each
	}

	return desc, nil
}

func fieldName(sf reflect.StructField) string {
	if tag := sf.Tag.Get("json"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return sf.Name
}
