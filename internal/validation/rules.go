package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	playground "github.com/go-playground/validator/v10"
)

// ErrUnknownRule reports a rule name with no registered evaluator.
var ErrUnknownRule = errors.New("unknown validation rule")

// RuleFunc evaluates one rule against a field value. ok == false carries the
// ready-to-surface message.
type RuleFunc func(field string, value any, args []string) (ok bool, message string)

// Evaluator is the extension-facing rule shape: pass/fail on (value, args).
// Messages come from the template the rule registers with.
type Evaluator func(value any, args []string) bool

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// strictEmail backs the second pass of the email rule.
var strictEmail = playground.New()

func builtinRules() map[string]RuleFunc {
	return map[string]RuleFunc{
		"required": ruleRequired,
		"string":   ruleString,
		"int":      ruleInt,
		"min":      ruleMin,
		"max":      ruleMax,
		"between":  ruleBetween,
		"email":    ruleEmail,
		"in":       ruleIn,
	}
}

// RenderTemplate fills :field and :argN placeholders in a rule message
// template.
func RenderTemplate(template, field string, args []string) string {
	out := strings.ReplaceAll(template, ":field", field)
	for i, arg := range args {
		out = strings.ReplaceAll(out, fmt.Sprintf(":arg%d", i), arg)
	}
	return out
}

// WrapEvaluator adapts an extension evaluator and its message template into
// the internal rule shape.
func WrapEvaluator(eval Evaluator, template string) RuleFunc {
	return func(field string, value any, args []string) (bool, string) {
		if eval(value, args) {
			return true, ""
		}
		return false, RenderTemplate(template, field, args)
	}
}

// required fails only for null and empty string: zero and false are values.
func ruleRequired(field string, value any, _ []string) (bool, string) {
	if value == nil {
		return false, fmt.Sprintf("%s is required.", field)
	}
	if s, ok := value.(string); ok && s == "" {
		return false, fmt.Sprintf("%s is required.", field)
	}
	return true, ""
}

func ruleString(field string, value any, _ []string) (bool, string) {
	if _, ok := value.(string); ok {
		return true, ""
	}
	return false, fmt.Sprintf("%s must be a string.", field)
}

func ruleInt(field string, value any, _ []string) (bool, string) {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true, ""
	case float64:
		if v == float64(int64(v)) {
			return true, ""
		}
	case float32:
		if v == float32(int64(v)) {
			return true, ""
		}
	}
	return false, fmt.Sprintf("%s must be an integer.", field)
}

func ruleMin(field string, value any, args []string) (bool, string) {
	if len(args) != 1 {
		return false, fmt.Sprintf("%s has a malformed min rule.", field)
	}

	if s, ok := value.(string); ok {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Sprintf("%s has a malformed min rule.", field)
		}
		if len([]rune(s)) >= n {
			return true, ""
		}
		return false, fmt.Sprintf("%s must be at least %d characters.", field, n)
	}

	num, ok := numericValue(value)
	bound, err := strconv.ParseFloat(args[0], 64)
	if !ok || err != nil {
		return false, fmt.Sprintf("%s must be at least %s.", field, args[0])
	}
	if num >= bound {
		return true, ""
	}
	return false, fmt.Sprintf("%s must be at least %s.", field, args[0])
}

func ruleMax(field string, value any, args []string) (bool, string) {
	if len(args) != 1 {
		return false, fmt.Sprintf("%s has a malformed max rule.", field)
	}

	if s, ok := value.(string); ok {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Sprintf("%s has a malformed max rule.", field)
		}
		if len([]rune(s)) <= n {
			return true, ""
		}
		return false, fmt.Sprintf("%s must be at most %d characters.", field, n)
	}

	num, ok := numericValue(value)
	bound, err := strconv.ParseFloat(args[0], 64)
	if !ok || err != nil {
		return false, fmt.Sprintf("%s must be at most %s.", field, args[0])
	}
	if num <= bound {
		return true, ""
	}
	return false, fmt.Sprintf("%s must be at most %s.", field, args[0])
}

// between is numeric only; non-numeric values fail the rule.
func ruleBetween(field string, value any, args []string) (bool, string) {
	if len(args) != 2 {
		return false, fmt.Sprintf("%s has a malformed between rule.", field)
	}

	num, ok := numericValue(value)
	lo, errLo := strconv.ParseFloat(args[0], 64)
	hi, errHi := strconv.ParseFloat(args[1], 64)
	if !ok || errLo != nil || errHi != nil {
		return false, fmt.Sprintf("%s must be between %s and %s.", field, args[0], args[1])
	}
	if num >= lo && num <= hi {
		return true, ""
	}
	return false, fmt.Sprintf("%s must be between %s and %s.", field, args[0], args[1])
}

// email requires both the anchored pattern and the stricter library check.
func ruleEmail(field string, value any, _ []string) (bool, string) {
	s, ok := value.(string)
	if !ok || !emailPattern.MatchString(s) {
		return false, fmt.Sprintf("%s must be a valid email address.", field)
	}
	if err := strictEmail.Var(s, "email"); err != nil {
		return false, fmt.Sprintf("%s must be a valid email address.", field)
	}
	return true, ""
}

func ruleIn(field string, value any, args []string) (bool, string) {
	repr, ok := scalarString(value)
	if ok {
		for _, arg := range args {
			if repr == arg {
				return true, ""
			}
		}
	}
	return false, fmt.Sprintf("%s must be one of: %s.", field, strings.Join(args, ", "))
}

func numericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	default:
		if num, ok := numericValue(value); ok {
			return strconv.FormatFloat(num, 'f', -1, 64), true
		}
		return "", false
	}
}
