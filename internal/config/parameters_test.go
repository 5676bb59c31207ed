package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `
OutputDir = "out"
BoundaryBox = [0, 0, 0, 1, 1, 1]
Dt = 0.01
Steps = 10
Diameter = 1e-4
Density = 2500
Gravity = [0, 0, -9.81]

[Runs.settling]
Restitution = 0.5

[Runs.spinning]
Omega = [0, 0, 6.283185307179586]
Dt = 0.02
`

func unify(t *testing.T, doc, run string) (RunParameters, error) {
	t.Helper()
	cfg, meta, err := DecodeConfig(doc, "test")
	require.NoError(t, err)
	params := cfg.Runs[run]
	err = params.CheckAndUnify(run, &cfg, &meta)
	return params, err
}

func TestRunPrecedence(t *testing.T) {
	settling, err := unify(t, baseConfig, "settling")
	require.NoError(t, err)
	assert.Equal(t, 0.5, settling.Restitution)
	assert.Equal(t, 0.01, settling.Dt)
	assert.InDelta(t, 100e-6, settling.Diameter, 1e-18)
	assert.Equal(t, []float64{0, 0, -9.81}, settling.Gravity)
	assert.Equal(t, []float64{0, 0, 0}, settling.Omega)
	assert.Equal(t, "stokes", settling.Drag)
	assert.Equal(t, 3, settling.Dimensions)
	assert.Equal(t, 10, settling.MaxBounces)

	spinning, err := unify(t, baseConfig, "spinning")
	require.NoError(t, err)
	assert.Equal(t, 1., spinning.Restitution)
	assert.Equal(t, 0.02, spinning.Dt)
	assert.InDelta(t, 6.283185307179586, spinning.Omega[2], 1e-15)
}

func TestMeshUnitConversion(t *testing.T) {
	doc := `
MeshUnit = "cm"
InputUnits = ["mm"]
BoundaryBox = [0, 0, 0, 10, 10, 10]
Dt = 0.001
Steps = 1
Diameter = 0.5
Density = 2500
Gravity = [0, 0, -9810]
`
	params, err := unify(t, doc, "test")
	require.NoError(t, err)
	assert.InDelta(t, 0.05, params.Diameter, 1e-12)
	assert.InDelta(t, -981, params.Gravity[2], 1e-9)
	// kg mm^-3 -> kg cm^-3
	assert.InDelta(t, 2.5e6, params.Density, 1e-3)
	assert.InDelta(t, 1000e-6, params.FluidDensity, 1e-12)
}

func TestConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing boundary", "Dt = 0.1\nSteps = 1\nDiameter = 1\nDensity = 1\n"},
		{"missing dt", "BoundaryBox = [0, 0, 0, 1, 1, 1]\nSteps = 1\nDiameter = 1\nDensity = 1\n"},
		{"both boundaries", baseConfigWith(`Boundary = "walls.txt"`)},
		{"restitution", baseConfigWith("Restitution = 1.5")},
		{"short gravity", baseConfigWith("Gravity = [0, -9.81]")},
		{"partition", baseConfigWith(`Partition = "w"`)},
		{"mesh needs snapshots", baseConfigWith("MeshResolution = 4")},
		{"bad field name", baseConfigWith(`Fields = ["ok", "not ok"]`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := unify(t, tt.doc, "test")
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func baseConfigWith(line string) string {
	return "BoundaryBox = [0, 0, 0, 1, 1, 1]\nDt = 0.1\nSteps = 1\nDiameter = 1\nDensity = 1\n" + line + "\n"
}

func TestRunSwitchesBoundary(t *testing.T) {
	doc := baseConfig + `
[Runs.custom]
Boundary = "walls.txt"
`
	params, err := unify(t, doc, "custom")
	require.NoError(t, err)
	assert.Equal(t, "walls.txt", params.Boundary)
	assert.Empty(t, params.BoundaryBox)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gyre.toml"), []byte(baseConfigWith(`Flow = "gyre"`)), 0600))

	cfg, meta, err := LoadConfig(filepath.Join(dir, "gyre"))
	require.NoError(t, err)
	require.Contains(t, cfg.Runs, "gyre")
	params := cfg.Runs["gyre"]
	require.NoError(t, params.CheckAndUnify("gyre", &cfg, &meta))
	assert.Equal(t, "gyre", params.Flow)

	_, _, err = LoadConfig(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrConfiguration)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "typo.toml"), []byte("Dtt = 1\n"), 0600))
	_, _, err = LoadConfig(filepath.Join(dir, "typo.toml"))
	assert.ErrorIs(t, err, ErrConfiguration)

	_, _, err = DecodeConfig(`InputUnits = ["cm", "mm"]`, "x")
	assert.ErrorIs(t, err, ErrConfiguration)
	_, _, err = DecodeConfig(`MeshUnit = "kg"`, "x")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSI(t *testing.T) {
	viscosity := []UnitElement{{Class: Mass, Power: 1}, {Class: Length, Power: -1}, {Class: Time, Power: -1}}
	assert.InDelta(t, 1e-3, SI(1, viscosity, []string{"g", "cm", "s"}, true)*1e-2, 1e-15)
	assert.InDelta(t, 2., SI(SI(2, viscosity, []string{"mm", "g", "ms"}, true), viscosity, []string{"mm", "g", "ms"}, false), 1e-12)
}
