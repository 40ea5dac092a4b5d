package testcase

import (
	gocontext "context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Encoding names accepted by Decode.
const (
	EncodingJSON = "json"
	EncodingYAML = "yaml"
)

// Decode reads a collaborator Batch from r. A bare JSON/YAML list of test
// cases is accepted as well as the {"test_cases": [...]} envelope.
func Decode(r io.Reader, encoding string) (Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Batch{}, fmt.Errorf("read test cases: %w", err)
	}

	unmarshal := json.Unmarshal
	switch strings.ToLower(encoding) {
	case EncodingJSON, "":
	case EncodingYAML, "yml":
		unmarshal = yaml.Unmarshal
	default:
		return Batch{}, fmt.Errorf("unknown test case encoding %q", encoding)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "- ") {
		var cases []TestCase
		if err := unmarshal(data, &cases); err != nil {
			return Batch{}, fmt.Errorf("parse test case list: %w", err)
		}
		return Batch{TestCases: cases}, nil
	}

	var batch Batch
	if err := unmarshal(data, &batch); err != nil {
		return Batch{}, fmt.Errorf("parse test case batch: %w", err)
	}
	return batch, nil
}

// DecodeFile reads a Batch from a .json, .yaml or .yml file.
func DecodeFile(path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, fmt.Errorf("open test cases %s: %w", path, err)
	}
	defer f.Close()

	return Decode(f, encodingForPath(path))
}

func encodingForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return EncodingYAML
	default:
		return EncodingJSON
	}
}

// Generator drafts test cases for a requirement. The production implementation
// is an LLM call that lives outside this module.
type Generator interface {
	Generate(ctx gocontext.Context, requirementText, domain string) (Batch, error)
}

// FileGenerator replays collaborator output previously saved to disk.
type FileGenerator struct {
	Path string
}

// Generate ignores the requirement and returns the batch stored at Path.
func (g FileGenerator) Generate(ctx gocontext.Context, _, _ string) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	return DecodeFile(g.Path)
}
