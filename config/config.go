// Package config assembles the scene settings from defaults, an optional TOML
// file, a .env file and the process environment, in increasing priority.
package config

import (
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
)

// ErrInvalidConfig marks configuration that fails Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

type Window struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type Vulkan struct {
	EnableValidation bool     `toml:"enable_validation"`
	ValidationLayers []string `toml:"validation_layers"`
	// PreferredImageCount of 0 lets the surface decide.
	PreferredImageCount int  `toml:"preferred_image_count"`
	PreferMailbox       bool `toml:"prefer_mailbox"`
}

type Render struct {
	FramesInFlight int        `toml:"frames_in_flight"`
	ClearColor     [4]float32 `toml:"clear_color"`
	// Instances is how many instances of the model the scene starts with.
	Instances int `toml:"instances"`
}

// Assets are paths relative to Root. Texture and Mesh are optional.
type Assets struct {
	Root           string `toml:"root"`
	VertexShader   string `toml:"vertex_shader"`
	FragmentShader string `toml:"fragment_shader"`
	Texture        string `toml:"texture"`
	NearestFilter  bool   `toml:"nearest_filter"`
	Mesh           string `toml:"mesh"`
}

type Log struct {
	Level string `toml:"level"`
}

type Config struct {
	Window Window `toml:"window"`
	Vulkan Vulkan `toml:"vulkan"`
	Render Render `toml:"render"`
	Assets Assets `toml:"assets"`
	Log    Log    `toml:"log"`
}

func Default() Config {
	return Config{
		Window: Window{
			Title:  "forward",
			Width:  800,
			Height: 600,
		},
		Vulkan: Vulkan{
			ValidationLayers: []string{"VK_LAYER_KHRONOS_validation"},
		},
		Render: Render{
			FramesInFlight: 2,
			ClearColor:     [4]float32{0, 0, 0, 1},
			Instances:      1,
		},
		Assets: Assets{
			Root:           "assets",
			VertexShader:   "shaders/vert.spv",
			FragmentShader: "shaders/frag.spv",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads .env from the working directory and then applies SCENE_CONFIG and
// the SCENE_* environment variables over the defaults.
func Load() (Config, error) {
	return load(".env")
}

func load(dotenv string) (Config, error) {
	err := godotenv.Load(dotenv)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, errors.Wrapf(err, "load %s", dotenv)
	}
	envy.Reload()

	cfg := Default()

	path := envy.Get("SCENE_CONFIG", "")
	if path != "" {
		err = decodeFile(path, &cfg)
		if err != nil {
			return Config{}, err
		}
	}

	err = applyEnv(&cfg)
	if err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config")
	}
	defer f.Close()

	err = toml.NewDecoder(f).DisallowUnknownFields().Decode(cfg)
	if err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return errors.Wrapf(err, "decode %s: %s", path, strict.String())
		}
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var err error
	setString := func(key string, dst *string) {
		if value := envy.Get(key, ""); value != "" {
			*dst = value
		}
	}
	setInt := func(key string, dst *int) {
		value := envy.Get(key, "")
		if value == "" || err != nil {
			return
		}
		parsed, parseErr := strconv.Atoi(value)
		if parseErr != nil {
			err = errors.Wrapf(parseErr, "%s", key)
			return
		}
		*dst = parsed
	}
	setBool := func(key string, dst *bool) {
		value := envy.Get(key, "")
		if value == "" || err != nil {
			return
		}
		parsed, parseErr := strconv.ParseBool(value)
		if parseErr != nil {
			err = errors.Wrapf(parseErr, "%s", key)
			return
		}
		*dst = parsed
	}

	setString("SCENE_TITLE", &cfg.Window.Title)
	setInt("SCENE_WIDTH", &cfg.Window.Width)
	setInt("SCENE_HEIGHT", &cfg.Window.Height)

	setBool("SCENE_VALIDATION", &cfg.Vulkan.EnableValidation)
	if layers := envy.Get("SCENE_VALIDATION_LAYERS", ""); layers != "" {
		cfg.Vulkan.ValidationLayers = strings.Split(layers, ",")
	}
	setInt("SCENE_IMAGE_COUNT", &cfg.Vulkan.PreferredImageCount)
	setBool("SCENE_MAILBOX", &cfg.Vulkan.PreferMailbox)

	setInt("SCENE_FRAMES_IN_FLIGHT", &cfg.Render.FramesInFlight)
	setInt("SCENE_INSTANCES", &cfg.Render.Instances)

	setString("SCENE_ASSETS", &cfg.Assets.Root)
	setString("SCENE_MESH", &cfg.Assets.Mesh)
	setString("SCENE_TEXTURE", &cfg.Assets.Texture)

	setString("SCENE_LOG_LEVEL", &cfg.Log.Level)
	return err
}

// Validate rejects settings the renderer cannot start with.
func (c Config) Validate() error {
	var problems []string
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		problems = append(problems, "window size must be positive")
	}
	if c.Vulkan.PreferredImageCount < 0 {
		problems = append(problems, "preferred image count cannot be negative")
	}
	if c.Vulkan.EnableValidation && len(c.Vulkan.ValidationLayers) == 0 {
		problems = append(problems, "validation enabled without layers")
	}
	if c.Render.FramesInFlight < 1 {
		problems = append(problems, "frames in flight must be at least 1")
	}
	if c.Render.Instances < 0 {
		problems = append(problems, "instance count cannot be negative")
	}
	if c.Assets.VertexShader == "" || c.Assets.FragmentShader == "" {
		problems = append(problems, "both shaders are required")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return errors.Mark(errors.Newf("%s", strings.Join(problems, "; ")), ErrInvalidConfig)
	}
	return nil
}

// LogLevel is the parsed Log.Level. Validate has already rejected bad values.
func (c Config) LogLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
