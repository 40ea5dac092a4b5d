package plan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `
apiVersion: tracegen/v1
kind: RunPlan
meta:
  name: "release-{{release}}"
params:
  - name: release
    default: "1.0"
defaults:
  domain: healthcare software
  format: xml
  cases: batches/all.json
  metadata:
    release: "{{release}}"
jobs:
  - name: search
    input: docs/search.md
    output: exports/search-{{release}}.xml
  - name: auth
    text: "Users must authenticate with two factors before viewing records."
    format: json
    matrix: false
    metadata:
      owner: security
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(samplePlan), nil)
	require.NoError(t, err)

	assert.Equal(t, "release-1.0", p.Meta.Name)
	require.Len(t, p.Jobs, 2)
	assert.Equal(t, "exports/search-1.0.xml", p.Jobs[0].Output)
	assert.True(t, Validate(p).Valid(), Validate(p).Error())
}

func TestParseOverrides(t *testing.T) {
	p, err := Parse([]byte(samplePlan), map[string]string{"release": "2.3"})
	require.NoError(t, err)
	assert.Equal(t, "release-2.3", p.Meta.Name)
	assert.Equal(t, "exports/search-2.3.xml", p.Jobs[0].Output)
}

func TestResolvedAppliesDefaults(t *testing.T) {
	p, err := Parse([]byte(samplePlan), nil)
	require.NoError(t, err)

	jobs := p.Resolved()
	require.Len(t, jobs, 2)

	search := jobs[0]
	assert.Equal(t, "healthcare software", search.Domain)
	assert.Equal(t, "xml", search.Format)
	assert.Equal(t, "batches/all.json", search.Cases)
	assert.True(t, search.BuildMatrix())
	assert.True(t, search.StoreContext())
	assert.Equal(t, "1.0", search.Metadata["release"])

	auth := jobs[1]
	assert.Empty(t, auth.Input)
	assert.Equal(t, "json", auth.Format)
	assert.False(t, auth.BuildMatrix())
	assert.Equal(t, map[string]any{"release": "1.0", "owner": "security"}, auth.Metadata)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0644))

	p, err := Load(path, nil)
	require.NoError(t, err)
	assert.Len(t, p.Jobs, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("jobs: [unclosed"), nil)
	assert.Error(t, err)
}

func TestBuiltinVars(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	vars := buildVarMap(nil, nil, now)
	assert.Equal(t, "2026-03-04", vars["date"])
	assert.Equal(t, "2026", vars["year"])
	assert.Equal(t, "out-2026-03-04/{{unknown}}", interpolateVars("out-{{date}}/{{unknown}}", vars))
}

func TestValidate(t *testing.T) {
	valid := func() Plan {
		return Plan{
			APIVersion: APIVersion,
			Kind:       Kind,
			Meta:       Meta{Name: "p"},
			Jobs:       []Job{{Name: "a", Input: "a.md", Cases: "a.json"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Plan)
		field  string
	}{
		{"missing apiVersion", func(p *Plan) { p.APIVersion = "" }, "apiVersion"},
		{"wrong apiVersion", func(p *Plan) { p.APIVersion = "tracegen/v0" }, "apiVersion"},
		{"wrong kind", func(p *Plan) { p.Kind = "Pipeline" }, "kind"},
		{"missing name", func(p *Plan) { p.Meta.Name = "" }, "meta.name"},
		{"no jobs", func(p *Plan) { p.Jobs = nil }, "jobs"},
		{"no source", func(p *Plan) { p.Jobs[0].Input = "" }, "jobs[0]"},
		{"both sources", func(p *Plan) { p.Jobs[0].Text = "inline" }, "jobs[0]"},
		{"no cases", func(p *Plan) { p.Jobs[0].Cases = "" }, "jobs[0].cases"},
		{"bad format", func(p *Plan) { p.Jobs[0].Format = "csv" }, "jobs[0].format"},
		{"output without format", func(p *Plan) { p.Jobs[0].Output = "out.xml" }, "jobs[0].output"},
		{"unresolved var", func(p *Plan) { p.Jobs[0].Input = "{{missing}}.md" }, "jobs[0]"},
		{"duplicate job", func(p *Plan) { p.Jobs = append(p.Jobs, p.Jobs[0]) }, "jobs[1].name"},
		{"duplicate param", func(p *Plan) { p.Params = []ParamDef{{Name: "x"}, {Name: "x"}} }, "params[1].name"},
	}

	require.True(t, Validate(valid()).Valid())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			result := Validate(p)
			require.False(t, result.Valid())
			fields := make([]string, len(result.Errors))
			for i, e := range result.Errors {
				fields[i] = e.Field
			}
			assert.Contains(t, fields, tt.field)
			assert.Contains(t, result.Error(), "validation failed")
		})
	}
}

func TestExpandGlob(t *testing.T) {
	base := t.TempDir()
	for _, f := range []string{"docs/search.md", "docs/audit/log.md", "docs/notes.txt"} {
		path := filepath.Join(base, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}

	p := Plan{
		APIVersion: APIVersion,
		Kind:       Kind,
		Meta:       Meta{Name: "docs"},
		Jobs: []Job{
			{Name: "all", Input: "docs/**/*.md", Cases: "cases.json", Format: "xml", Output: "out/"},
			{Name: "inline", Text: "Inline requirement text.", Cases: "cases.json"},
		},
	}
	require.True(t, Validate(p).Valid(), Validate(p).Error())

	jobs, err := p.Expand(base)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, "all/audit/log", jobs[0].Name)
	assert.Equal(t, filepath.Join("docs", "audit", "log.md"), jobs[0].Input)
	assert.Equal(t, "out/audit/log.xml", jobs[0].Output)
	assert.Equal(t, "all/search", jobs[1].Name)
	assert.Equal(t, "out/search.xml", jobs[1].Output)
	assert.Equal(t, "inline", jobs[2].Name)
}

func TestExpandNoMatches(t *testing.T) {
	p := Plan{Jobs: []Job{{Name: "none", Input: "missing/*.md", Cases: "c.json"}}}
	_, err := p.Expand(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files match")
}

func TestValidateGlobOutput(t *testing.T) {
	p := Plan{
		APIVersion: APIVersion,
		Kind:       Kind,
		Meta:       Meta{Name: "docs"},
		Jobs:       []Job{{Name: "all", Input: "docs/*.md", Cases: "c.json", Format: "json", Output: "out.json"}},
	}
	result := Validate(p)
	require.False(t, result.Valid())
	assert.Equal(t, "jobs[0].output", result.Errors[0].Field)
}

func TestGlobPrefix(t *testing.T) {
	assert.Equal(t, "docs", globPrefix("docs/**/*.md"))
	assert.Equal(t, "", globPrefix("*.md"))
	assert.Equal(t, "a/b", globPrefix("a/b/{x,y}.md"))
}
