package plan

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML plan file. Template variables like {{date}} and
// {{param_name}} are interpolated from params, falling back to the plan's
// declared defaults.
func Load(path string, params map[string]string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read plan %s: %w", path, err)
	}
	return Parse(data, params)
}

// Parse parses YAML data into a Plan with variable interpolation.
func Parse(data []byte, params map[string]string) (Plan, error) {
	// First pass picks up param defaults.
	var raw Plan
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Plan{}, fmt.Errorf("parse plan: %w", err)
	}

	vars := buildVarMap(raw.Params, params, time.Now())
	interpolated := interpolateVars(string(data), vars)

	var p Plan
	if err := yaml.Unmarshal([]byte(interpolated), &p); err != nil {
		return Plan{}, fmt.Errorf("parse interpolated plan: %w", err)
	}
	return p, nil
}

func buildVarMap(defs []ParamDef, overrides map[string]string, now time.Time) map[string]string {
	vars := map[string]string{
		"date":     now.Format("2006-01-02"),
		"datetime": now.Format("2006-01-02T15:04:05"),
		"year":     now.Format("2006"),
	}
	for _, p := range defs {
		if p.Default != nil {
			vars[p.Name] = fmt.Sprintf("%v", p.Default)
		}
	}
	for k, v := range overrides {
		vars[k] = v
	}
	return vars
}

var templatePattern = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// interpolateVars replaces {{name}} with its value. Unknown names are left
// in place so Validate can report them.
func interpolateVars(s string, vars map[string]string) string {
	return templatePattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "{{"), "}}")
		if val, ok := vars[name]; ok {
			return val
		}
		return match
	})
}
