// Package plan loads batch run plans: YAML manifests that list several
// requirement documents to push through the pipeline in one invocation.
package plan

// APIVersion and Kind identify a run plan document.
const (
	APIVersion = "tracegen/v1"
	Kind       = "RunPlan"
)

// Plan is a batch of pipeline jobs sharing a set of defaults.
type Plan struct {
	APIVersion string     `yaml:"apiVersion" json:"apiVersion"`
	Kind       string     `yaml:"kind" json:"kind"`
	Meta       Meta       `yaml:"meta" json:"meta"`
	Defaults   Job        `yaml:"defaults" json:"defaults"`
	Jobs       []Job      `yaml:"jobs" json:"jobs"`
	Params     []ParamDef `yaml:"params" json:"params"`
}

// Meta describes the plan.
type Meta struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Tags        []string `yaml:"tags" json:"tags"`
}

// Job is one requirement document run through the pipeline. Unset fields
// inherit from Plan.Defaults.
type Job struct {
	Name     string         `yaml:"name" json:"name"`
	Input    string         `yaml:"input" json:"input,omitempty"`
	Text     string         `yaml:"text" json:"text,omitempty"`
	Cases    string         `yaml:"cases" json:"cases,omitempty"`
	Domain   string         `yaml:"domain" json:"domain,omitempty"`
	Format   string         `yaml:"format" json:"format,omitempty"`
	Output   string         `yaml:"output" json:"output,omitempty"`
	Matrix   *bool          `yaml:"matrix" json:"matrix,omitempty"`
	Context  *bool          `yaml:"context" json:"context,omitempty"`
	Metadata map[string]any `yaml:"metadata" json:"metadata,omitempty"`
}

// ParamDef declares a {{name}} variable and its default.
type ParamDef struct {
	Name        string `yaml:"name" json:"name"`
	Default     any    `yaml:"default" json:"default"`
	Description string `yaml:"description" json:"description"`
}

// BuildMatrix reports whether the job builds a traceability matrix.
// Jobs build one unless told otherwise.
func (j Job) BuildMatrix() bool {
	return j.Matrix == nil || *j.Matrix
}

// StoreContext reports whether the job records a context.
func (j Job) StoreContext() bool {
	return j.Context == nil || *j.Context
}

// Resolved returns the plan's jobs with defaults applied.
func (p Plan) Resolved() []Job {
	jobs := make([]Job, len(p.Jobs))
	for i, j := range p.Jobs {
		jobs[i] = j.withDefaults(p.Defaults)
	}
	return jobs
}

func (j Job) withDefaults(d Job) Job {
	if j.Input == "" && j.Text == "" {
		j.Input, j.Text = d.Input, d.Text
	}
	if j.Cases == "" {
		j.Cases = d.Cases
	}
	if j.Domain == "" {
		j.Domain = d.Domain
	}
	if j.Format == "" {
		j.Format = d.Format
	}
	if j.Output == "" {
		j.Output = d.Output
	}
	if j.Matrix == nil {
		j.Matrix = d.Matrix
	}
	if j.Context == nil {
		j.Context = d.Context
	}
	if len(d.Metadata) > 0 {
		merged := make(map[string]any, len(d.Metadata)+len(j.Metadata))
		for k, v := range d.Metadata {
			merged[k] = v
		}
		for k, v := range j.Metadata {
			merged[k] = v
		}
		j.Metadata = merged
	}
	return j
}
