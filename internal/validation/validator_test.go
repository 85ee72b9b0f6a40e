package validation

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupForm struct {
	Name  string `json:"name" sanitize:"trim" validate:"required,string,min:3"`
	Email string `json:"email" sanitize:"trim,lowercase" validate:"required,email"`
	Plan  string `json:"plan" validate:"in:free,pro,enterprise"`
}

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(nil, 0, true)
	require.NoError(t, err)
	return v
}

func TestValidator_StructPipeline(t *testing.T) {
	v := newTestValidator(t)

	t.Run("sanitizers mutate the struct in place", func(t *testing.T) {
		form := &signupForm{Name: "  Ada  ", Email: " ADA@Example.COM ", Plan: "pro"}
		errs, err := v.Validate(form)
		require.NoError(t, err)
		assert.True(t, errs.Valid(), "unexpected errors: %v", errs)
		assert.Equal(t, "Ada", form.Name)
		assert.Equal(t, "ada@example.com", form.Email)
	})

	t.Run("rule failures collect per field", func(t *testing.T) {
		form := &signupForm{Name: " Jo ", Email: "not-an-email", Plan: "gold"}
		errs, err := v.Validate(form)
		require.NoError(t, err)
		assert.Equal(t, []string{"name must be at least 3 characters."}, errs["name"])
		assert.Equal(t, []string{"email must be a valid email address."}, errs["email"])
		assert.Equal(t, []string{"plan must be one of: free, pro, enterprise."}, errs["plan"])
	})

	t.Run("non-struct input is misuse", func(t *testing.T) {
		_, err := v.Validate("nope")
		assert.Error(t, err)
	})
}

func TestValidator_MapPipeline(t *testing.T) {
	v := newTestValidator(t)

	desc := &Descriptor{
		Name: "profile",
		Fields: []FieldDescriptor{
			{Name: "name", Sanitizers: []string{"trim"}, Rules: ParseRules("required,string,min:3")},
			{Name: "age", Sanitizers: []string{"intval"}, Rules: ParseRules("required,int,between:18,99")},
			{Name: "email", Rules: ParseRules("required,email")},
		},
	}

	t.Run("sanitizes then validates loose data", func(t *testing.T) {
		data := map[string]any{"name": " Jo ", "age": "25", "email": "jo@example.com"}
		errs, err := v.ValidateMap(data, desc)
		require.NoError(t, err)

		assert.Equal(t, "Jo", data["name"])
		assert.Equal(t, int64(25), data["age"])
		assert.Equal(t, Errors{"name": {"name must be at least 3 characters."}}, errs)
	})

	t.Run("missing field is uninitialized and skips its rules", func(t *testing.T) {
		data := map[string]any{"name": "Jordan", "email": "j@example.com"}
		errs, err := v.ValidateMap(data, desc)
		require.NoError(t, err)
		assert.Equal(t, []string{"age is not initialized"}, errs["age"])
	})

	t.Run("unknown rule surfaces as a Go error", func(t *testing.T) {
		bad := &Descriptor{Fields: []FieldDescriptor{{Name: "x", Rules: ParseRules("sparkly")}}}
		_, err := v.ValidateMap(map[string]any{"x": 1}, bad)
		assert.ErrorIs(t, err, ErrUnknownRule)
	})

	t.Run("validation is pure", func(t *testing.T) {
		data := map[string]any{"name": "Jo", "age": int64(12), "email": "jo@example.com"}
		first, err := v.ValidateMap(data, desc)
		require.NoError(t, err)
		second, err := v.ValidateMap(data, desc)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestValidator_RequiredSemantics(t *testing.T) {
	v := newTestValidator(t)
	desc := &Descriptor{Fields: []FieldDescriptor{{Name: "v", Rules: ParseRules("required")}}}

	check := func(value any) Errors {
		errs, err := v.ValidateMap(map[string]any{"v": value}, desc)
		require.NoError(t, err)
		return errs
	}

	t.Run("zero false and the string zero pass", func(t *testing.T) {
		assert.True(t, check(0).Valid())
		assert.True(t, check(false).Valid())
		assert.True(t, check("0").Valid())
	})

	t.Run("null and empty string fail", func(t *testing.T) {
		assert.False(t, check(nil).Valid())
		assert.False(t, check("").Valid())
	})
}

func TestValidator_BetweenIsNumericOnly(t *testing.T) {
	v := newTestValidator(t)
	desc := &Descriptor{Fields: []FieldDescriptor{{Name: "v", Rules: ParseRules("between:1,9")}}}

	errs, err := v.ValidateMap(map[string]any{"v": 5}, desc)
	require.NoError(t, err)
	assert.True(t, errs.Valid())

	errs, err = v.ValidateMap(map[string]any{"v": "abc"}, desc)
	require.NoError(t, err)
	assert.False(t, errs.Valid())
}

func TestValidator_SanitizerIdempotence(t *testing.T) {
	v := newTestValidator(t)

	cases := map[string]any{
		"trim":                 "  spaced out  ",
		"strip_tags":           "<b>bold</b> text",
		"remove_html":          "<p>para</p>",
		"sanitize_string":      " <i>hi</i> ",
		"sanitize_email":       " weird<>@example.com ",
		"sanitize_url":         " https://example.com/a b ",
		"lowercase":            "MiXeD",
		"uppercase":            "MiXeD",
		"normalize_whitespace": "a   b\t\tc",
		"remove_whitespace":    "a b\tc",
		"alphanumeric":         "a-b_c9!",
		"alpha":                "abc123",
		"numeric":              "1a2b3c",
		"intval":               "42abc",
		"floatval":             "3.5x",
		"boolval":              "yes",
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			s, ok := v.lookupSanitizer(name)
			require.True(t, ok)
			once := s(input)
			twice := s(once)
			assert.Equal(t, once, twice)
		})
	}
}

type passwordForm struct {
	Password string `json:"password" validate:"required,min:8"`
	Confirm  string `json:"confirm"`
}

func (passwordForm) ObjectConstraints() ObjectConstraints {
	return ObjectConstraints{
		FieldsMatch: []FieldsMatch{{A: "password", B: "confirm", CaseSensitive: true}},
	}
}

func TestValidator_ObjectConstraints(t *testing.T) {
	v := newTestValidator(t)

	t.Run("fields match", func(t *testing.T) {
		form := &passwordForm{Password: "hunter22!", Confirm: "hunter22?"}
		errs, err := v.Validate(form)
		require.NoError(t, err)
		assert.Equal(t, []string{"confirm must match password."}, errs["confirm"])

		form = &passwordForm{Password: "hunter22!", Confirm: "hunter22!"}
		errs, err = v.Validate(form)
		require.NoError(t, err)
		assert.True(t, errs.Valid())
	})

	t.Run("both empty passes fields match", func(t *testing.T) {
		desc := &Descriptor{FieldsMatch: []FieldsMatch{{A: "a", B: "b", CaseSensitive: true}}}
		errs, err := v.ValidateMap(map[string]any{"a": "", "b": ""}, desc)
		require.NoError(t, err)
		assert.True(t, errs.Valid())
	})

	t.Run("conditional rules fire only when the gate matches", func(t *testing.T) {
		desc := &Descriptor{
			Fields: []FieldDescriptor{{Name: "type", Rules: ParseRules("required")}},
			When: []When{{
				Field:  "type",
				Equals: "company",
				Then:   map[string][]Rule{"vat": ParseRules("required")},
			}},
		}

		errs, err := v.ValidateMap(map[string]any{"type": "company", "vat": nil}, desc)
		require.NoError(t, err)
		assert.NotEmpty(t, errs["vat"])

		errs, err = v.ValidateMap(map[string]any{"type": "person", "vat": nil}, desc)
		require.NoError(t, err)
		assert.True(t, errs.Valid())
	})

	t.Run("collection rules key errors by element", func(t *testing.T) {
		desc := &Descriptor{
			Each: []Each{{Field: "tags", Rules: ParseRules("string,min:2")}},
		}
		errs, err := v.ValidateMap(map[string]any{"tags": []any{"ok", "x", 7}}, desc)
		require.NoError(t, err)
		assert.Empty(t, errs["tags.0"])
		assert.Equal(t, []string{"tags.1 must be at least 2 characters."}, errs["tags.1"])
		assert.NotEmpty(t, errs["tags.2"])
	})
}

func TestValidator_ExtensionRules(t *testing.T) {
	v := newTestValidator(t)
	desc := &Descriptor{Fields: []FieldDescriptor{{Name: "code", Rules: ParseRules("required,uppercase_code")}}}

	v.AddRule("uppercase_code", func(value any, _ []string) bool {
		s, ok := value.(string)
		if !ok {
			return false
		}
		for _, r := range s {
			if r < 'A' || r > 'Z' {
				return false
			}
		}
		return true
	}, ":field must be an uppercase code.")

	t.Run("custom rule evaluates with its template", func(t *testing.T) {
		errs, err := v.ValidateMap(map[string]any{"code": "abc"}, desc)
		require.NoError(t, err)
		assert.Equal(t, []string{"code must be an uppercase code."}, errs["code"])
	})

	t.Run("always-pass rule changes nothing for valid objects", func(t *testing.T) {
		plain := &Descriptor{Fields: []FieldDescriptor{{Name: "name", Rules: ParseRules("required,string")}}}
		before, err := v.ValidateMap(map[string]any{"name": "fine"}, plain)
		require.NoError(t, err)
		require.True(t, before.Valid())

		v.AddRule("noop", func(any, []string) bool { return true }, "never rendered")
		withNoop := &Descriptor{Fields: []FieldDescriptor{{Name: "name", Rules: ParseRules("required,string,noop")}}}
		after, err := v.ValidateMap(map[string]any{"name": "fine"}, withNoop)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestCompileStruct(t *testing.T) {
	t.Run("compiles tags in declaration order", func(t *testing.T) {
		desc, err := CompileStruct(reflect.TypeOf(signupForm{}))
		require.NoError(t, err)
		require.Len(t, desc.Fields, 3)
		assert.Equal(t, "name", desc.Fields[0].Name)
		assert.Equal(t, []string{"trim"}, desc.Fields[0].Sanitizers)
		assert.Equal(t, []Rule{{Name: "required"}, {Name: "string"}, {Name: "min", Args: []string{"3"}}}, desc.Fields[0].Rules)
		assert.Equal(t, []Rule{{Name: "in", Args: []string{"free", "pro", "enterprise"}}}, desc.Fields[2].Rules)
	})

	t.Run("argument commas stay inside their rule", func(t *testing.T) {
		rules := ParseRules("required,between:1,9")
		assert.Equal(t, []Rule{{Name: "required"}, {Name: "between", Args: []string{"1", "9"}}}, rules)
	})

	t.Run("non-struct types are rejected", func(t *testing.T) {
		_, err := CompileStruct(reflect.TypeOf("nope"))
		assert.Error(t, err)
	})
}
