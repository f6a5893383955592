package config

import (
	"time"
)

// Version is the only supported sceneflow.yaml schema version.
const Version = 1

// SceneflowConfig is the root config for sceneflow.yaml
type SceneflowConfig struct {
	Version    int              `yaml:"version"`
	Display    DisplayConfig    `yaml:"display"`
	Log        LogConfig        `yaml:"log"`
	Engine     EngineConfig     `yaml:"engine"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Scenes     []SceneConfig    `yaml:"scenes"`
	Transition TransitionConfig `yaml:"transition"`
}

type DisplayConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Scale  int    `yaml:"scale"`
	Title  string `yaml:"title"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type EngineConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // How often load progress is relayed
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // Empty disables the metrics endpoint
}

// SceneConfig describes one build scene. Its position in the list is its
// build index.
type SceneConfig struct {
	Name          string               `yaml:"name"`
	LoadTime      time.Duration        `yaml:"load_time"`
	UnloadTime    time.Duration        `yaml:"unload_time"`
	LoadingScreen *LoadingScreenConfig `yaml:"loading_screen"` // Set for intermediate scenes with a fader
}

type LoadingScreenConfig struct {
	FadeTime   time.Duration `yaml:"fade_time"`
	MinDisplay time.Duration `yaml:"min_display"`
}

// TransitionConfig drives the demo: it starts at Start and each transition
// request moves to the next scene of Cycle, through Intermediate if set.
type TransitionConfig struct {
	Start        string   `yaml:"start"`
	Intermediate string   `yaml:"intermediate"`
	Cycle        []string `yaml:"cycle"`
}
