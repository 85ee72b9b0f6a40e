package rbac

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/glueful/glueful/internal/db/models"
	"github.com/hashicorp/go-bexpr"
)

// exprConstraintKey is a reserved constraint key whose value is a go-bexpr
// expression evaluated against the whole request context, mirroring role
// scope expressions. Ordinary keys use the operator grammar below.
const exprConstraintKey = "expr"

// grantMatches applies the expiry-independent filters of a grant: the
// resource filter against context["resource"], then every constraint entry.
// Absence of a filter or constraint map means the grant matches.
func grantMatches(resourceFilter, constraints models.JSONMap, evalCtx map[string]any) bool {
	if !resourceMatches(resourceFilter, evalCtx) {
		return false
	}
	return constraintsMatch(constraints, evalCtx)
}

// resourceMatches checks the grant's resource field against the requested
// resource. Matching is wildcard "*", exact equality, or glob with "*"
// expanded to ".*" in an anchored regexp.
func resourceMatches(filter models.JSONMap, evalCtx map[string]any) bool {
	requested, ok := evalCtx["resource"]
	if !ok {
		return true
	}
	if filter == nil {
		return true
	}
	pattern, ok := filter["resource"]
	if !ok {
		return true
	}

	patternStr := toString(pattern)
	requestedStr := toString(requested)

	if patternStr == "*" {
		return true
	}
	if patternStr == requestedStr {
		return true
	}
	if strings.Contains(patternStr, "*") {
		quoted := regexp.QuoteMeta(patternStr)
		quoted = strings.ReplaceAll(quoted, `\*`, ".*")
		re, err := regexp.Compile("^" + quoted + "$")
		if err != nil {
			return false
		}
		return re.MatchString(requestedStr)
	}
	return false
}

// constraintsMatch requires every constraint key to be satisfied by the
// context. A key absent from the context fails its constraint.
func constraintsMatch(constraints models.JSONMap, evalCtx map[string]any) bool {
	for key, expected := range constraints {
		if key == exprConstraintKey {
			if !exprMatches(expected, evalCtx) {
				return false
			}
			continue
		}

		actual, ok := evalCtx[key]
		if !ok {
			return false
		}
		if !constraintMatches(expected, actual) {
			return false
		}
	}
	return true
}

// constraintMatches evaluates one constraint value:
//   - a list passes when the context value is loosely equal to any element
//   - a tagged string "<op>:<value>" applies the operator grammar
//   - anything else compares by loose equality
func constraintMatches(expected, actual any) bool {
	if list, ok := expected.([]any); ok {
		for _, item := range list {
			if looseEqual(item, actual) {
				return true
			}
		}
		return false
	}

	if tagged, ok := expected.(string); ok {
		if op, operand, found := splitOperator(tagged); found {
			return applyOperator(op, operand, actual)
		}
	}

	return looseEqual(expected, actual)
}

// splitOperator parses "<op>:<value>" tagged strings. Longer prefixes are
// tried first so ">=" is not read as ">".
func splitOperator(s string) (op, operand string, ok bool) {
	for _, prefix := range []string{">=:", "<=:", "!=:", ">:", "<:", "in:", "not_in:"} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimSuffix(prefix, ":"), s[len(prefix):], true
		}
	}
	return "", "", false
}

func applyOperator(op, operand string, actual any) bool {
	switch op {
	case "in", "not_in":
		found := false
		for _, item := range strings.Split(operand, ",") {
			if looseEqual(strings.TrimSpace(item), actual) {
				found = true
				break
			}
		}
		if op == "in" {
			return found
		}
		return !found
	case "!=":
		return !looseEqual(operand, actual)
	case ">", ">=", "<", "<=":
		left, lok := toFloat(actual)
		right, rok := toFloat(operand)
		if !lok || !rok {
			return false
		}
		switch op {
		case ">":
			return left > right
		case ">=":
			return left >= right
		case "<":
			return left < right
		default:
			return left <= right
		}
	default:
		return false
	}
}

// exprMatches evaluates a reserved bexpr constraint against the full context.
// A malformed expression fails the grant rather than erroring the decision.
func exprMatches(expected any, evalCtx map[string]any) bool {
	exprStr, ok := expected.(string)
	if !ok {
		return false
	}
	eval, err := bexpr.CreateEvaluator(exprStr)
	if err != nil {
		return false
	}
	matched, err := eval.Evaluate(evalCtx)
	if err != nil {
		return false
	}
	return matched
}

// looseEqual compares two scalars under loose coercion: numeric when both
// sides parse as numbers, string comparison otherwise. Matches the grammar's
// "equality under loose coercion".
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
