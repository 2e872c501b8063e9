package template

import (
	"regexp"
)

// placeholder pattern: {{name}}, {{ name }}
var varPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// MissingMarker is substituted for a placeholder with no matching variable.
func MissingMarker(name string) string {
	return "[MISSING:" + name + "]"
}

// Fill substitutes {{variable}} placeholders in tmpl with values from vars.
// Unknown variables are replaced with a visible [MISSING:name] marker so a
// misconfigured campaign shows up in the delivered text and the report.
// Text that does not form a complete placeholder is left untouched.
func Fill(tmpl string, vars map[string]string) string {
	if tmpl == "" {
		return ""
	}

	return varPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := varPattern.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return MissingMarker(name)
	})
}

// Placeholders returns the distinct variable names used in tmpl, in order of
// first appearance.
func Placeholders(tmpl string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range varPattern.FindAllStringSubmatch(tmpl, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

// Missing returns the placeholders of tmpl that vars does not define.
func Missing(tmpl string, vars map[string]string) []string {
	var missing []string
	for _, name := range Placeholders(tmpl) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
