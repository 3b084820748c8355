package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Skipped        int               `json:"skipped"` // filtered out by name
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one failed scenario.
type ScenarioFailure struct {
	Name   string   `json:"name,omitempty"`
	Path   string   `json:"path"`
	Errors []string `json:"errors"`
}

// RunSuite loads every *.yaml and *.yml file in dir, in name order, and runs
// the scenarios whose name contains filter. A scenario that fails to load or
// run counts as failed.
func RunSuite(ctx context.Context, dir, filter string) (*SuiteResult, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files in %s", dir)
	}

	result := &SuiteResult{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		scenario, err := LoadScenario(path)
		if err != nil {
			result.TotalScenarios++
			result.fail(ScenarioFailure{Path: path, Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)}})
			continue
		}
		if filter != "" && !strings.Contains(scenario.Name, filter) {
			result.Skipped++
			continue
		}
		result.TotalScenarios++

		run, err := Run(ctx, scenario)
		if err != nil {
			result.fail(ScenarioFailure{Name: scenario.Name, Path: path, Errors: []string{fmt.Sprintf("scenario execution failed: %v", err)}})
			continue
		}
		if !run.Pass {
			result.fail(ScenarioFailure{Name: scenario.Name, Path: path, Errors: run.Errors})
			continue
		}
		result.Passed++
	}
	return result, nil
}

func (r *SuiteResult) fail(f ScenarioFailure) {
	r.Failed++
	r.Failures = append(r.Failures, f)
}
