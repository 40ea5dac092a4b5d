package plan

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cgast/tracegen/pkg/export"
)

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// Expand resolves the plan's jobs and fans out every job whose input is a
// glob pattern (with ** support) into one job per matching file, in lexical
// order. Relative patterns are matched under base and the expanded inputs
// stay relative to it. An expanded job is named <job>/<file without
// extension> and, when the job has an output directory, writes
// <output>/<file without extension><format extension>.
func (p Plan) Expand(base string) ([]Job, error) {
	var jobs []Job
	for _, job := range p.Resolved() {
		if !isPattern(job.Input) {
			jobs = append(jobs, job)
			continue
		}

		pattern := job.Input
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(base, pattern)
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("job %s: glob %q: %w", job.Name, job.Input, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("job %s: no files match %q", job.Name, job.Input)
		}
		sort.Strings(matches)

		var ext string
		if info, ok := export.Info(export.Format(job.Format)); ok {
			ext = info.Extension
		}
		for _, m := range matches {
			input := m
			if !filepath.IsAbs(job.Input) {
				if rel, err := filepath.Rel(base, m); err == nil {
					input = rel
				}
			}
			stem := filepath.ToSlash(strings.TrimSuffix(input, filepath.Ext(input)))
			if prefix := globPrefix(job.Input); prefix != "" {
				stem = strings.TrimPrefix(stem, prefix+"/")
			}

			expanded := job
			expanded.Input = input
			expanded.Name = job.Name + "/" + stem
			if job.Output != "" {
				expanded.Output = path.Join(job.Output, stem+ext)
			}
			jobs = append(jobs, expanded)
		}
	}
	return jobs, nil
}

// globPrefix returns the literal directory part of pattern before the first
// segment containing a glob meta character.
func globPrefix(pattern string) string {
	var literal []string
	for _, seg := range strings.Split(filepath.ToSlash(pattern), "/") {
		if isPattern(seg) {
			break
		}
		literal = append(literal, seg)
	}
	return strings.Join(literal, "/")
}
