package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldenScenarios(t *testing.T) {
	for _, name := range []string{"merchant_batch", "strict_retcon"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshotCanonical(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "strict_retcon.yaml"))
	require.NoError(t, err)
	result, err := RunWithGolden(t, s)
	require.NoError(t, err)

	snap := Snapshot{ScenarioName: s.Name, Trace: result.Trace, State: result.State, Display: result.Display}
	first, err := snap.Canonical()
	require.NoError(t, err)
	second, err := snap.Canonical()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, string(first), `"display":"19 GP"`)
}
