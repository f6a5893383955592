package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/younwookim/sceneflow/internal/infrastructure/engine/simengine"
)

// FileName is the config file read by LoadSceneflow.
const FileName = "sceneflow.yaml"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Loader loads sceneflow configuration from YAML files using fs.FS interface
type Loader struct {
	fsys     fs.FS
	basePath string
}

// NewLoader creates a new config loader from filesystem path
func NewLoader(basePath string) *Loader {
	return &Loader{
		fsys:     os.DirFS(basePath),
		basePath: basePath,
	}
}

// NewFSLoader creates a new config loader from fs.FS
func NewFSLoader(fsys fs.FS, basePath string) *Loader {
	return &Loader{
		fsys:     fsys,
		basePath: basePath,
	}
}

// BasePath returns the directory the loader reads from.
func (l *Loader) BasePath() string {
	return l.basePath
}

// LoadSceneflow loads sceneflow.yaml, fills defaults and validates it.
func (l *Loader) LoadSceneflow() (*SceneflowConfig, error) {
	cfg, err := load[SceneflowConfig](l.fsys, FileName)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", FileName, err)
	}
	return cfg, nil
}

func load[T any](fsys fs.FS, name string) (*T, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	var cfg T
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	return &cfg, nil
}

func (c *SceneflowConfig) applyDefaults() {
	if c.Display.Width == 0 {
		c.Display.Width = 320
	}
	if c.Display.Height == 0 {
		c.Display.Height = 240
	}
	if c.Display.Scale == 0 {
		c.Display.Scale = 2
	}
	if c.Display.Title == "" {
		c.Display.Title = "sceneflow"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Engine.PollInterval == 0 {
		c.Engine.PollInterval = 16 * time.Millisecond
	}
}

// Validate checks the version, the scene catalog and that every scene the
// transition section names exists.
func (c *SceneflowConfig) Validate() error {
	if c.Version != Version {
		return fmt.Errorf("%w: unsupported version: %d", ErrInvalid, c.Version)
	}
	if len(c.Scenes) == 0 {
		return fmt.Errorf("%w: no scenes", ErrInvalid)
	}
	if c.Engine.PollInterval < 0 {
		return fmt.Errorf("%w: negative engine.poll_interval", ErrInvalid)
	}

	seen := make(map[string]bool, len(c.Scenes))
	for i, s := range c.Scenes {
		if s.Name == "" {
			return fmt.Errorf("%w: scenes[%d]: missing name", ErrInvalid, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: scenes[%d]: duplicate name %q", ErrInvalid, i, s.Name)
		}
		seen[s.Name] = true
		if s.LoadTime < 0 || s.UnloadTime < 0 {
			return fmt.Errorf("%w: scene %q: negative load or unload time", ErrInvalid, s.Name)
		}
		if ls := s.LoadingScreen; ls != nil && (ls.FadeTime < 0 || ls.MinDisplay < 0) {
			return fmt.Errorf("%w: scene %q: negative loading screen timing", ErrInvalid, s.Name)
		}
	}

	if c.Transition.Start == "" {
		return fmt.Errorf("%w: transition.start is required", ErrInvalid)
	}
	names := append([]string{c.Transition.Start, c.Transition.Intermediate}, c.Transition.Cycle...)
	for _, name := range names {
		if name != "" && !seen[name] {
			return fmt.Errorf("%w: transition references unknown scene %q", ErrInvalid, name)
		}
	}
	return nil
}

// Scene returns the scene named name.
func (c *SceneflowConfig) Scene(name string) (SceneConfig, bool) {
	for _, s := range c.Scenes {
		if s.Name == name {
			return s, true
		}
	}
	return SceneConfig{}, false
}

// Catalog converts the scene list into a simulated engine build catalog.
func (c *SceneflowConfig) Catalog() []simengine.Spec {
	out := make([]simengine.Spec, len(c.Scenes))
	for i, s := range c.Scenes {
		out[i] = simengine.Spec{
			Name:       s.Name,
			LoadTime:   s.LoadTime,
			UnloadTime: s.UnloadTime,
		}
	}
	return out
}
