package plan

import (
	"fmt"
	"strings"

	"github.com/cgast/tracegen/pkg/export"
)

// ValidationError is a single validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult holds every failure found in a plan.
type ValidationResult struct {
	Errors []ValidationError
}

// Valid returns true if no validation errors were found.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Error joins all failures into one message.
func (r ValidationResult) Error() string {
	if r.Valid() {
		return ""
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (r *ValidationResult) add(field, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the plan header and every job after defaults are applied.
func Validate(p Plan) ValidationResult {
	var result ValidationResult

	switch p.APIVersion {
	case "":
		result.add("apiVersion", "required")
	case APIVersion:
	default:
		result.add("apiVersion", "unsupported version %q (expected %s)", p.APIVersion, APIVersion)
	}
	switch p.Kind {
	case "":
		result.add("kind", "required")
	case Kind:
	default:
		result.add("kind", "unsupported kind %q (expected %s)", p.Kind, Kind)
	}
	if p.Meta.Name == "" {
		result.add("meta.name", "required")
	}
	if len(p.Jobs) == 0 {
		result.add("jobs", "at least one job is required")
	}

	names := make(map[string]bool)
	for i, job := range p.Resolved() {
		field := fmt.Sprintf("jobs[%d]", i)
		switch {
		case job.Name == "":
			result.add(field+".name", "required")
		case names[job.Name]:
			result.add(field+".name", "duplicate job name %q", job.Name)
		default:
			names[job.Name] = true
		}

		if job.Input == "" && strings.TrimSpace(job.Text) == "" {
			result.add(field, "one of input or text is required")
		} else if job.Input != "" && job.Text != "" {
			result.add(field, "input and text are mutually exclusive")
		}
		if job.Cases == "" {
			result.add(field+".cases", "required")
		}
		if job.Format != "" {
			if _, err := export.ParseFormat(job.Format); err != nil {
				result.add(field+".format", "%v", err)
			}
		}
		if job.Output != "" && job.Format == "" {
			result.add(field+".output", "set without a format")
		}
		if isPattern(job.Input) && job.Output != "" && !strings.HasSuffix(job.Output, "/") {
			result.add(field+".output", "must be a directory ending in / when input is a glob")
		}
		if m := templatePattern.FindString(job.Input + job.Text + job.Cases + job.Output); m != "" {
			result.add(field, "unresolved variable %s", m)
		}
	}

	params := make(map[string]bool)
	for i, def := range p.Params {
		field := fmt.Sprintf("params[%d].name", i)
		switch {
		case def.Name == "":
			result.add(field, "required")
		case params[def.Name]:
			result.add(field, "duplicate param name %q", def.Name)
		default:
			params[def.Name] = true
		}
	}

	return result
}
