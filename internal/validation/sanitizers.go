package validation

import (
	"regexp"
	"strconv"
	"strings"
)

// Sanitizer transforms a value in place. Sanitizers never fail; unconvertible
// input passes through (or collapses to the type's zero value for the
// casting filters, matching loose-typing semantics).
type Sanitizer func(value any) any

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRuns    = regexp.MustCompile(`\s+`)
	anyWhitespace     = regexp.MustCompile(`\s`)
	nonEmailChars     = regexp.MustCompile(`[^A-Za-z0-9._%+@\-]`)
	nonURLChars       = regexp.MustCompile(`[^A-Za-z0-9$\-_.+!*'(),{}|\\^~\[\]` + "`" + `<>#%";/?:@&=]`)
	nonAlphanumChars  = regexp.MustCompile(`[^A-Za-z0-9]`)
	nonAlphaChars     = regexp.MustCompile(`[^A-Za-z]`)
	nonNumericChars   = regexp.MustCompile(`[^0-9.\-]`)
	leadingIntPattern = regexp.MustCompile(`^[+-]?\d+`)
)

// builtinSanitizers is the default filter set. Each filter is idempotent.
func builtinSanitizers() map[string]Sanitizer {
	return map[string]Sanitizer{
		"trim": stringFilter(strings.TrimSpace),
		"strip_tags": stringFilter(func(s string) string {
			return htmlTagPattern.ReplaceAllString(s, "")
		}),
		"remove_html": stringFilter(func(s string) string {
			return htmlTagPattern.ReplaceAllString(s, "")
		}),
		"sanitize_string": stringFilter(func(s string) string {
			return strings.TrimSpace(htmlTagPattern.ReplaceAllString(s, ""))
		}),
		"sanitize_email": stringFilter(func(s string) string {
			return nonEmailChars.ReplaceAllString(strings.TrimSpace(s), "")
		}),
		"sanitize_url": stringFilter(func(s string) string {
			return nonURLChars.ReplaceAllString(strings.TrimSpace(s), "")
		}),
		"lowercase": stringFilter(strings.ToLower),
		"uppercase": stringFilter(strings.ToUpper),
		"normalize_whitespace": stringFilter(func(s string) string {
			return strings.TrimSpace(whitespaceRuns.ReplaceAllString(s, " "))
		}),
		"remove_whitespace": stringFilter(func(s string) string {
			return anyWhitespace.ReplaceAllString(s, "")
		}),
		"alphanumeric": stringFilter(func(s string) string {
			return nonAlphanumChars.ReplaceAllString(s, "")
		}),
		"alpha": stringFilter(func(s string) string {
			return nonAlphaChars.ReplaceAllString(s, "")
		}),
		"numeric": stringFilter(func(s string) string {
			return nonNumericChars.ReplaceAllString(s, "")
		}),
		"intval":   intval,
		"floatval": floatval,
		"boolval":  boolval,
	}
}

// stringFilter lifts a string transform to a Sanitizer that leaves
// non-string values untouched.
func stringFilter(f func(string) string) Sanitizer {
	return func(value any) any {
		if s, ok := value.(string); ok {
			return f(s)
		}
		return value
	}
}

func intval(value any) any {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float32:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	case string:
		// Loose casting: a leading integer counts, anything else is 0.
		match := leadingIntPattern.FindString(strings.TrimSpace(v))
		if match == "" {
			return int64(0)
		}
		n, err := strconv.ParseInt(match, 10, 64)
		if err != nil {
			return int64(0)
		}
		return n
	default:
		return int64(0)
	}
}

func floatval(value any) any {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case bool:
		if v {
			return float64(1)
		}
		return float64(0)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return float64(0)
		}
		return f
	default:
		return float64(0)
	}
}

func boolval(value any) any {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s != "" && s != "0" && s != "false" && s != "off" && s != "no"
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return value != nil
	}
}
