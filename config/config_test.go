package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, logrus.InfoLevel, cfg.LogLevel())
	require.Equal(t, 2, cfg.Render.FramesInFlight)
}

func TestLoadWithoutSources(t *testing.T) {
	t.Setenv("SCENE_CONFIG", "")

	cfg, err := load(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scene.toml", `
[window]
title = "cubes"
width = 1024
height = 768

[vulkan]
preferred_image_count = 3
prefer_mailbox = true

[render]
clear_color = [0.1, 0.2, 0.3, 1.0]

[assets]
mesh = "meshes/room.obj"
`)
	t.Setenv("SCENE_CONFIG", path)

	cfg, err := load(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	require.Equal(t, "cubes", cfg.Window.Title)
	require.Equal(t, 1024, cfg.Window.Width)
	require.Equal(t, 768, cfg.Window.Height)
	require.Equal(t, 3, cfg.Vulkan.PreferredImageCount)
	require.True(t, cfg.Vulkan.PreferMailbox)
	require.Equal(t, [4]float32{0.1, 0.2, 0.3, 1.0}, cfg.Render.ClearColor)
	require.Equal(t, "meshes/room.obj", cfg.Assets.Mesh)
	// untouched keys keep their defaults
	require.Equal(t, "shaders/vert.spv", cfg.Assets.VertexShader)
	require.Equal(t, 2, cfg.Render.FramesInFlight)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scene.toml", `
[window]
widht = 1024
`)
	t.Setenv("SCENE_CONFIG", path)

	_, err := load(filepath.Join(dir, ".env"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "widht")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scene.toml", `
[window]
width = 1024
height = 768
`)
	t.Setenv("SCENE_CONFIG", path)
	t.Setenv("SCENE_WIDTH", "640")
	t.Setenv("SCENE_VALIDATION", "true")
	t.Setenv("SCENE_VALIDATION_LAYERS", "VK_LAYER_A,VK_LAYER_B")
	t.Setenv("SCENE_LOG_LEVEL", "debug")

	cfg, err := load(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	require.Equal(t, 640, cfg.Window.Width)
	require.Equal(t, 768, cfg.Window.Height)
	require.True(t, cfg.Vulkan.EnableValidation)
	require.Equal(t, []string{"VK_LAYER_A", "VK_LAYER_B"}, cfg.Vulkan.ValidationLayers)
	require.Equal(t, logrus.DebugLevel, cfg.LogLevel())
}

func TestDotenvFile(t *testing.T) {
	dir := t.TempDir()
	dotenv := writeFile(t, dir, ".env", "SCENE_INSTANCES=12\n")
	t.Setenv("SCENE_CONFIG", "")
	t.Cleanup(func() {
		os.Unsetenv("SCENE_INSTANCES")
	})

	cfg, err := load(dotenv)
	require.NoError(t, err)
	require.Equal(t, 12, cfg.Render.Instances)
}

func TestLoadBadNumber(t *testing.T) {
	t.Setenv("SCENE_CONFIG", "")
	t.Setenv("SCENE_HEIGHT", "tall")

	_, err := load(filepath.Join(t.TempDir(), ".env"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "SCENE_HEIGHT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Window.Width = 0 }},
		{"zero height", func(c *Config) { c.Window.Height = 0 }},
		{"negative image count", func(c *Config) { c.Vulkan.PreferredImageCount = -1 }},
		{"validation without layers", func(c *Config) {
			c.Vulkan.EnableValidation = true
			c.Vulkan.ValidationLayers = nil
		}},
		{"no frames in flight", func(c *Config) { c.Render.FramesInFlight = 0 }},
		{"missing shader", func(c *Config) { c.Assets.FragmentShader = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}
