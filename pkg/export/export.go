// Package export renders test-case collections into structured-data, plain
// scenario text, XML and Word document formats.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cgast/tracegen/internal/sandbox"
	"github.com/cgast/tracegen/pkg/testcase"
)

// Format identifies an export format.
type Format string

const (
	FormatJSON    Format = "json"
	FormatGherkin Format = "gherkin"
	FormatXML     Format = "xml"
	FormatExcel   Format = "excel"
	FormatDOCX    Format = "docx"
	FormatPDF     Format = "pdf"
)

var (
	// ErrUnsupportedFormat is returned for formats outside the declared set.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrNotImplemented is returned for declared formats with no renderer.
	ErrNotImplemented = errors.New("export format not yet implemented")
)

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	Name        Format `json:"name"`
	MIMEType    string `json:"mime_type"`
	Extension   string `json:"extension"`
	Description string `json:"description"`
	Implemented bool   `json:"implemented"`
}

// formatRegistry holds every declared format.
var formatRegistry = map[Format]FormatInfo{
	FormatJSON: {
		Name:        FormatJSON,
		MIMEType:    "application/json",
		Extension:   ".json",
		Description: "Test cases wrapped in an envelope with export timestamp and count",
		Implemented: true,
	},
	FormatGherkin: {
		Name:        FormatGherkin,
		MIMEType:    "text/x-gherkin",
		Extension:   ".feature",
		Description: "Scenario text only, separated by blank lines",
		Implemented: true,
	},
	FormatXML: {
		Name:        FormatXML,
		MIMEType:    "application/xml",
		Extension:   ".xml",
		Description: "Hierarchical markup for requirements tools",
		Implemented: true,
	},
	FormatExcel: {
		Name:        FormatExcel,
		MIMEType:    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension:   ".xlsx",
		Description: "Spreadsheet workbook",
	},
	FormatDOCX: {
		Name:        FormatDOCX,
		MIMEType:    "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Extension:   ".docx",
		Description: "Word document with one page per test case",
		Implemented: true,
	},
	FormatPDF: {
		Name:        FormatPDF,
		MIMEType:    "application/pdf",
		Extension:   ".pdf",
		Description: "Portable document",
	},
}

// Formats returns metadata for every declared format, sorted by name.
func Formats() []FormatInfo {
	result := make([]FormatInfo, 0, len(formatRegistry))
	for _, info := range formatRegistry {
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Info returns metadata for format.
func Info(format Format) (FormatInfo, bool) {
	info, ok := formatRegistry[format]
	return info, ok
}

// ParseFormat normalizes s and checks it against the declared set.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := formatRegistry[f]; !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, s, supportedList())
	}
	return f, nil
}

func supportedList() string {
	names := make([]string, 0, len(formatRegistry))
	for _, info := range Formats() {
		names = append(names, string(info.Name))
	}
	return strings.Join(names, ", ")
}

// Result describes one export. Exactly one of Content or Path is set.
type Result struct {
	Format    Format `json:"format"`
	Content   string `json:"content,omitempty"`
	Path      string `json:"path,omitempty"`
	TestCases int    `json:"test_cases"`
	Bytes     int    `json:"bytes"`
}

// EventPublisher receives a notification for each artifact written.
type EventPublisher interface {
	PublishExportEvent(format string, testCases int, path string)
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithSandbox checks caller-supplied destinations and artifact sizes against sb.
func WithSandbox(sb *sandbox.Sandbox) Option {
	return func(e *Exporter) { e.sandbox = sb }
}

// WithTempDir sets where docx exports without a destination are written.
func WithTempDir(dir string) Option {
	return func(e *Exporter) { e.tempDir = dir }
}

// WithBaseDir resolves relative destinations under dir.
func WithBaseDir(dir string) Option {
	return func(e *Exporter) { e.baseDir = dir }
}

// WithEvents publishes export events to p.
func WithEvents(p EventPublisher) Option {
	return func(e *Exporter) { e.events = p }
}

// WithClock overrides time.Now for export timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// Exporter renders test cases. It holds no state between calls.
type Exporter struct {
	sandbox *sandbox.Sandbox
	tempDir string
	baseDir string
	events  EventPublisher
	now     func() time.Time
}

// New creates an Exporter.
func New(opts ...Option) *Exporter {
	e := &Exporter{
		tempDir: os.TempDir(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export renders testCases in format. With a destination the artifact is
// written there and Result.Path is set; otherwise Result.Content holds the
// rendering. docx always produces a file, using a generated temp path when
// destination is empty. Test case order is preserved in every format.
func (e *Exporter) Export(testCases []testcase.TestCase, format Format, destination string) (Result, error) {
	info, ok := formatRegistry[format]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, format, supportedList())
	}
	if !info.Implemented {
		return Result{}, fmt.Errorf("%w: %s", ErrNotImplemented, format)
	}

	if destination != "" {
		if e.baseDir != "" && !filepath.IsAbs(destination) {
			destination = filepath.Join(e.baseDir, destination)
		}
		resolved, err := e.sandbox.Resolve(destination)
		if err != nil {
			return Result{}, err
		}
		destination = resolved
	}

	now := e.now()
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJSON:
		data, err = renderJSON(testCases, now)
	case FormatGherkin:
		data = renderGherkin(testCases)
	case FormatXML:
		data, err = renderXML(testCases, now, destination != "")
	case FormatDOCX:
		data, err = renderDOCX(testCases, now)
		if destination == "" {
			destination = filepath.Join(e.tempDir, "tracegen_export_"+uuid.NewString()+info.Extension)
		}
	}
	if err != nil {
		return Result{}, fmt.Errorf("render %s: %w", format, err)
	}

	result := Result{Format: format, TestCases: len(testCases), Bytes: len(data)}
	if destination == "" {
		result.Content = string(data)
		return result, nil
	}

	if err := e.sandbox.CheckSize(int64(len(data))); err != nil {
		return Result{}, err
	}
	if err := writeArtifact(destination, data); err != nil {
		return Result{}, err
	}
	result.Path = destination

	if e.events != nil {
		e.events.PublishExportEvent(string(format), len(testCases), destination)
	}
	return result, nil
}

func writeArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write export %s: %w", path, err)
	}
	return nil
}
