package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallConfig = `
initial_dim: 8
block_dims: [8, 12, 16]
nbr_rotations: 4
e2_same_nbr_filters: true
seed: 3
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backbone.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "e2fpn", cmd.Use)

	for _, name := range []string{"inspect", "run"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	config := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, config)
	assert.Equal(t, "c", config.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "inspect", "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestInspectText(t *testing.T) {
	out, err := execute(t, "inspect", "--config", writeConfig(t, smallConfig), "--height", "32", "--width", "48")
	require.NoError(t, err)
	assert.Contains(t, out, "state=trainable group=C4")
	assert.Contains(t, out, "projector")
	assert.Contains(t, out, "coarse [1 16 4 6]")
	assert.Contains(t, out, "fine   [1 8 16 24]")
}

func TestInspectJSON(t *testing.T) {
	out, err := execute(t, "inspect", "-c", writeConfig(t, smallConfig), "--format", "json", "--height", "16", "--width", "16")
	require.NoError(t, err)

	var res InspectResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []int{1, 16, 2, 2}, res.CoarseShape)
	assert.Equal(t, []int{1, 8, 8, 8}, res.FineShape)
	assert.Equal(t, 57, res.Blueprint.TotalLayers)
}

func TestInspectRejectsBadConfig(t *testing.T) {
	path := writeConfig(t, "nbr_rotations: 8\ne2_same_nbr_filters: false\ne2_dim_reduction: 16\n")
	_, err := execute(t, "inspect", "--config", path)
	assert.ErrorContains(t, err, "configuration error")
}

// TestRunExportParity runs the CLI end to end and checks that exporting
// does not change the outputs.
func TestRunExportParity(t *testing.T) {
	out, err := execute(t, "run", "-c", writeConfig(t, smallConfig), "--height", "16", "--width", "16", "--export", "--format", "json")
	require.NoError(t, err)

	var res RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []int{1, 16, 2, 2}, res.CoarseShape)
	assert.Equal(t, []int{1, 8, 8, 8}, res.FineShape)
	require.NotNil(t, res.Coarse)
	require.NotNil(t, res.Fine)
	assert.Zero(t, res.Coarse.MaxAbsError)
	assert.Zero(t, res.Fine.MaxAbsError)
}

func TestRunText(t *testing.T) {
	out, err := execute(t, "run", "-c", writeConfig(t, smallConfig), "--height", "16", "--width", "16", "--batch", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "coarse [2 16 2 2]")
	assert.NotContains(t, out, "export")
}

func TestRunRejectsNonPositiveSizes(t *testing.T) {
	cfg := writeConfig(t, smallConfig)
	for _, flag := range []string{"--batch=-1", "--batch=0", "--height=-16", "--width=0"} {
		t.Run(flag, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() {
				_, err = execute(t, "run", "-c", cfg, "--height", "16", "--width", "16", flag)
			})
			assert.ErrorContains(t, err, "must be positive")
		})
	}
}
