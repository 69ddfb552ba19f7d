package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/image-annotator/pkg/render"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Session SessionConfig `json:"session" yaml:"session"`
	Editor  EditorConfig  `json:"editor" yaml:"editor"`
	View    ViewConfig    `json:"view" yaml:"view"`
	Render  render.Style  `json:"render" yaml:"render"`
	Assist  AssistConfig  `json:"assist" yaml:"assist"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// ServerConfig holds configuration for the HTTP host shell
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// SessionConfig holds configuration for the annotation session
type SessionConfig struct {
	SourceDir      string   `json:"source_dir" yaml:"source_dir"`
	DestDir        string   `json:"dest_dir" yaml:"dest_dir"`
	ProjectsDir    string   `json:"projects_dir" yaml:"projects_dir"`
	Autosave       bool     `json:"autosave" yaml:"autosave"`
	DefaultClass   int      `json:"default_class" yaml:"default_class"`
	ClassNames     []string `json:"class_names" yaml:"class_names"`
	ViewportWidth  int      `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int      `json:"viewport_height" yaml:"viewport_height"`
	RotateQuality  int      `json:"rotate_quality" yaml:"rotate_quality"`
}

// EditorConfig holds configuration for box editing
type EditorConfig struct {
	ClickThreshold  float64 `json:"click_threshold" yaml:"click_threshold"`
	HistoryCapacity int     `json:"history_capacity" yaml:"history_capacity"`
}

// ViewConfig holds zoom and pan limits
type ViewConfig struct {
	MinZoom  float64 `json:"min_zoom" yaml:"min_zoom"`
	MaxZoom  float64 `json:"max_zoom" yaml:"max_zoom"`
	ZoomIn   float64 `json:"zoom_in" yaml:"zoom_in"`
	ZoomOut  float64 `json:"zoom_out" yaml:"zoom_out"`
	PanRange float64 `json:"pan_range" yaml:"pan_range"`
}

// AssistConfig holds configuration for vision-model box suggestions
type AssistConfig struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	Backend       string  `json:"backend" yaml:"backend"`
	URL           string  `json:"url" yaml:"url"`
	Model         string  `json:"model" yaml:"model"`
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
	SendFormat    string  `json:"send_format" yaml:"send_format"`
	SendSize      int     `json:"send_size" yaml:"send_size"`
	SendQuality   int     `json:"send_quality" yaml:"send_quality"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:5000",
		},
		Session: SessionConfig{
			ProjectsDir:    "projects",
			Autosave:       true,
			DefaultClass:   0,
			ViewportWidth:  1024,
			ViewportHeight: 768,
			RotateQuality:  95,
		},
		Editor: EditorConfig{
			ClickThreshold:  6,
			HistoryCapacity: 100,
		},
		View: ViewConfig{
			MinZoom:  0.5,
			MaxZoom:  3.0,
			ZoomIn:   1.1,
			ZoomOut:  0.9,
			PanRange: 500,
		},
		Render: render.DefaultStyle(),
		Assist: AssistConfig{
			Enabled:       false,
			Backend:       "ollama",
			URL:           "http://localhost:11434",
			Model:         "openbmb/minicpm-v4.5",
			MinConfidence: 0.3,
			SendFormat:    "jpg",
			SendSize:      1536,
			SendQuality:   85,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFromFile loads configuration from a JSON or YAML file. Missing
// fields keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON or YAML file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	if c.Session.DefaultClass < 0 {
		return fmt.Errorf("session.default_class must not be negative")
	}

	if c.Session.ProjectsDir == "" {
		return fmt.Errorf("session.projects_dir cannot be empty")
	}

	if c.Session.ViewportWidth < 1 || c.Session.ViewportHeight < 1 {
		return fmt.Errorf("session.viewport_width and viewport_height must be positive")
	}

	if c.Session.RotateQuality < 1 || c.Session.RotateQuality > 100 {
		return fmt.Errorf("session.rotate_quality must be between 1 and 100")
	}

	if c.Editor.ClickThreshold <= 0 {
		return fmt.Errorf("editor.click_threshold must be positive")
	}

	if c.Editor.HistoryCapacity < 1 {
		return fmt.Errorf("editor.history_capacity must be positive")
	}

	if c.View.MinZoom <= 0 || c.View.MaxZoom < c.View.MinZoom {
		return fmt.Errorf("view.min_zoom must be positive and not above view.max_zoom")
	}

	if c.View.ZoomIn <= 1 || c.View.ZoomOut <= 0 || c.View.ZoomOut >= 1 {
		return fmt.Errorf("view.zoom_in must be above 1 and view.zoom_out between 0 and 1")
	}

	if c.Render.FontSize <= 0 {
		return fmt.Errorf("render.font_size must be positive")
	}

	if c.Assist.Enabled {
		if c.Assist.Backend != "ollama" && c.Assist.Backend != "llamacpp" {
			return fmt.Errorf("assist.backend must be ollama or llamacpp")
		}
		if c.Assist.MinConfidence < 0 || c.Assist.MinConfidence > 1 {
			return fmt.Errorf("assist.min_confidence must be between 0 and 1")
		}
		if c.Assist.SendQuality < 1 || c.Assist.SendQuality > 100 {
			return fmt.Errorf("assist.send_quality must be between 1 and 100")
		}
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json")
	}

	return nil
}

// NewLogger builds a logger from the log section
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "image-annotator", "config.json")
}
