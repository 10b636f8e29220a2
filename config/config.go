package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from yaml strings like "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	User    UserConfig    `yaml:"user"`
	Device  DeviceConfig  `yaml:"device"`
	Audio   AudioConfig   `yaml:"audio"`
	Whisper WhisperConfig `yaml:"whisper"`
	Ydotool YdotoolConfig `yaml:"ydotool"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

type UserConfig struct {
	// Name is the desktop user that owns the audio and display session.
	// Recording and injection subprocesses run as this user.
	Name string `yaml:"name"`
}

type DeviceConfig struct {
	Path       string `yaml:"path"`
	TriggerKey string `yaml:"trigger_key"`
}

type AudioConfig struct {
	Backend     string   `yaml:"backend"`
	File        string   `yaml:"file"`
	SampleRate  int      `yaml:"sample_rate"`
	Channels    int      `yaml:"channels"`
	Format      string   `yaml:"format"`
	StopTimeout Duration `yaml:"stop_timeout"`
	Keep        bool     `yaml:"keep"`
}

type WhisperConfig struct {
	Binary    string   `yaml:"binary"`
	Model     string   `yaml:"model"`
	ModelSize string   `yaml:"model_size"`
	ModelDir  string   `yaml:"model_dir"`
	Language  string   `yaml:"language"`
	Device    string   `yaml:"device"`
	Timeout   Duration `yaml:"timeout"`
}

type YdotoolConfig struct {
	Binary     string `yaml:"binary"`
	Socket     string `yaml:"socket"`
	KeyDelayMS int    `yaml:"key_delay_ms"`
}

type SessionConfig struct {
	Display        string `yaml:"display"`
	WaylandDisplay string `yaml:"wayland_display"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.User.Name == "" {
		// Covers the common "sudo handsfree listen" invocation.
		c.User.Name = os.Getenv("SUDO_USER")
	}
	if c.Device.TriggerKey == "" {
		c.Device.TriggerKey = "KEY_RIGHTCTRL"
	}
	if c.Audio.Backend == "" {
		c.Audio.Backend = "arecord"
	}
	if c.Audio.File == "" {
		c.Audio.File = "/tmp/handsfree.wav"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.Format == "" {
		c.Audio.Format = "S16_LE"
	}
	if c.Audio.StopTimeout == 0 {
		c.Audio.StopTimeout = Duration(2 * time.Second)
	}
	if c.Whisper.ModelSize == "" {
		c.Whisper.ModelSize = "small"
	}
	if c.Whisper.ModelDir == "" {
		c.Whisper.ModelDir = "/var/lib/handsfree/models"
	}
	if c.Whisper.Device == "" {
		c.Whisper.Device = "auto"
	}
	if c.Whisper.Timeout == 0 {
		c.Whisper.Timeout = Duration(60 * time.Second)
	}
	if c.Ydotool.Binary == "" {
		c.Ydotool.Binary = "ydotool"
	}
	if c.Ydotool.KeyDelayMS == 0 {
		c.Ydotool.KeyDelayMS = 5
	}
	if c.Session.Display == "" {
		c.Session.Display = ":0"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.Audio.Backend {
	case "arecord", "portaudio":
	default:
		return fmt.Errorf("audio.backend %q, want arecord or portaudio", c.Audio.Backend)
	}
	if c.Audio.SampleRate < 0 {
		return fmt.Errorf("audio.sample_rate %d, want positive", c.Audio.SampleRate)
	}
	if c.Audio.Channels < 0 {
		return fmt.Errorf("audio.channels %d, want positive", c.Audio.Channels)
	}
	switch c.Whisper.Device {
	case "auto", "cpu", "accelerated":
	default:
		return fmt.Errorf("whisper.device %q, want auto, cpu or accelerated", c.Whisper.Device)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q, want debug, info, warn or error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q, want text or json", c.Log.Format)
	}
	return nil
}
