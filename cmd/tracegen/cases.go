package main

import (
	"fmt"

	"github.com/cgast/tracegen/pkg/testcase"
)

// loadCases reads a saved generation batch and rejects failed batches.
func loadCases(path string) ([]testcase.TestCase, error) {
	if path == "" {
		return nil, fmt.Errorf("--cases is required")
	}
	batch, err := testcase.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	if err := batch.Err(); err != nil {
		return nil, err
	}
	return batch.TestCases, nil
}
