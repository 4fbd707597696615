package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volgeom/pkg/reconstruction"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	p := cfg.PipelineParams(nil)
	def := reconstruction.DefaultParams()
	assert.Equal(t, def.IsoValue, p.IsoValue)
	assert.Equal(t, def.Decimate, p.Decimate)
	assert.Equal(t, def.Mask, p.Mask)
	assert.Equal(t, 1.0, p.Sigma)
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"volgeom.yaml", "volgeom.toml"} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Smoothing.Sigma = 1.5
			cfg.Surface.SmoothIterations = 0
			cfg.Reformation.Sentinel = SentinelValue
			cfg.Reformation.SentinelValue = -1024
			cfg.Palette.Rules["aorta"] = "#ff0000"
			cfg.Output.LogFile = "run.log"

			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, SaveConfig(cfg, path))

			loaded, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "partial.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("smoothing:\n  sigma: 2.5\n"), 0644))
	cfg, err := LoadConfig(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.Smoothing.Sigma)
	assert.Equal(t, DefaultConfig().Surface, cfg.Surface)

	tomlPath := filepath.Join(dir, "partial.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("[reformation]\nrows = 40\n"), 0644))
	cfg, err = LoadConfig(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Reformation.Rows)
	assert.Equal(t, DefaultConfig().Reformation.Width, cfg.Reformation.Width)
}

func TestMalformedFile(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"bad.yaml": "smoothing: [unterminated\n",
		"bad.toml": "[smoothing\nsigma = \n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		_, err := LoadConfig(path)
		assert.Error(t, err, name)
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "isoValue:")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Smoothing.Sigma = -1
	cfg.Surface.IsoValue = 1.5
	cfg.Reformation.Rows = 0
	cfg.Reformation.Sentinel = "zero"
	cfg.Palette.Rules["vein"] = "blue"
	cfg.Output.Dir = ""

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, field := range []string{
		"smoothing.sigma",
		"surface.isoValue",
		"reformation.rows",
		"reformation.sentinel",
		`palette rule "vein"`,
		"output.dir",
	} {
		assert.Contains(t, msg, field)
	}
	assert.Equal(t, 6, len(strings.Split(msg, "\n")))
}

func TestReformationParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reformation.Rows = 32
	cfg.Reformation.Width = 12

	p := cfg.ReformationParams(nil)
	assert.Equal(t, 32, p.Rows)
	assert.Equal(t, 12.0, p.Width)
	assert.Equal(t, cfg.Reformation.MarkerStride, p.MarkerStride)

	cfg.Reformation.Window = 400
	cfg.Reformation.Level = 40
	opts := cfg.DisplayOptions()
	assert.Equal(t, 400.0, opts.Window.Width)
	assert.Equal(t, 40.0, opts.Window.Center)
}

func TestPaletteMapper(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Palette.Rules["aorta"] = "#00ff00"

	m, err := cfg.PaletteMapper()
	require.NoError(t, err)
	c := m.Color("Aorta", 0, 1)
	assert.Equal(t, "#00ff00", c.Hex())

	cfg.Palette.Rules["aorta"] = "green"
	_, err = cfg.PaletteMapper()
	assert.Error(t, err)
}
