package test

import (
	"embed"
	"io/fs"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed cases
var casesFS embed.FS

// TestCase is a scenario run against a new in-memory repository.
type TestCase struct {
	// Description is a simple description for the test case.
	Description string `yaml:"description"`
	// Namespace is the namespace of types declared in Schema.
	Namespace string `yaml:"namespace"`
	// Schema is the GraphQL SDL source of the registered feature types.
	Schema string `yaml:"schema"`
	// Steps are run in order.
	Steps []Step `yaml:"steps"`
}

// Step is a single action of a test case. Exactly one action field is set.
type Step struct {
	// Begin starts a transaction with the given name.
	Begin string `yaml:"begin"`
	// Rollback discards the named transaction.
	Rollback string `yaml:"rollback"`
	// Rebase moves the named transaction onto the current head.
	Rebase string `yaml:"rebase"`

	Insert *Insert `yaml:"insert"`
	Update *Update `yaml:"update"`
	Delete *Delete `yaml:"delete"`
	Commit *Commit `yaml:"commit"`
	Count  *Count  `yaml:"count"`
	Bounds *Bounds `yaml:"bounds"`

	// Error is a substring of the error the step is expected to fail with.
	Error string `yaml:"error"`
}

// Insert adds features to a type. A feature with an id key keeps that id.
type Insert struct {
	Type     string           `yaml:"type"`
	Tx       string           `yaml:"tx"`
	Features []map[string]any `yaml:"features"`
}

// Update sets attribute values of the features matching Filter.
type Update struct {
	Type   string         `yaml:"type"`
	Tx     string         `yaml:"tx"`
	Filter map[string]any `yaml:"filter"`
	Set    map[string]any `yaml:"set"`
	// Expect is the expected number of updated features.
	Expect *int `yaml:"expect"`
}

// Delete removes the features matching Filter.
type Delete struct {
	Type   string         `yaml:"type"`
	Tx     string         `yaml:"tx"`
	Filter map[string]any `yaml:"filter"`
	// Expect is the expected number of deleted features.
	Expect *int `yaml:"expect"`
}

// Commit publishes the named transaction.
type Commit struct {
	Tx      string `yaml:"tx"`
	Message string `yaml:"message"`
	// Status is the expected commit status.
	Status string `yaml:"status"`
}

// Count asserts the number of features matching Filter. An empty Tx reads the head.
type Count struct {
	Type   string         `yaml:"type"`
	Tx     string         `yaml:"tx"`
	Filter map[string]any `yaml:"filter"`
	Expect int64          `yaml:"expect"`
}

// Bounds asserts the envelope of the features matching Filter.
type Bounds struct {
	Type   string         `yaml:"type"`
	Tx     string         `yaml:"tx"`
	Filter map[string]any `yaml:"filter"`
	CRS    string         `yaml:"crs"`
	// Expect is minx, miny, maxx, maxy. An empty list expects no bounds.
	Expect []float64 `yaml:"expect"`
}

// TestCasePaths returns a list of all test case file paths.
func TestCasePaths() ([]string, error) {
	var paths []string
	err := fs.WalkDir(casesFS, "cases", func(path string, d fs.DirEntry, err error) error {
		if filepath.Ext(path) == ".yaml" {
			paths = append(paths, path)
		}
		return err
	})
	return paths, err
}

// LoadTestCase loads and parses a test case file.
func LoadTestCase(path string) (*TestCase, error) {
	data, err := fs.ReadFile(casesFS, path)
	if err != nil {
		return nil, err
	}
	var testCase TestCase
	if err := yaml.Unmarshal(data, &testCase); err != nil {
		return nil, err
	}
	return &testCase, nil
}
