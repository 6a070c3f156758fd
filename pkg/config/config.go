package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxChannels is the largest number of channels the column bitmap can describe
// for this instrument family.
const MaxChannels = 6

// Config represents the application configuration.
type Config struct {
	Serial   SerialConfig    `yaml:"serial"`
	Channels []ChannelConfig `yaml:"channels"`
	Dlog     DlogConfig      `yaml:"dlog"`
	Storage  StorageConfig   `yaml:"storage"`
	Playback PlaybackConfig  `yaml:"playback"`
	Mock     MockConfig      `yaml:"mock"`
}

// SerialConfig contains serial port configuration of the monitor front-end.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// ChannelConfig contains monitor scaling of a single output channel.
type ChannelConfig struct {
	VoltageFullScale float64 `yaml:"voltage_full_scale"` // Volts at ADC full scale
	CurrentFullScale float64 `yaml:"current_full_scale"` // Amperes at ADC full scale
}

// DlogConfig contains data logging defaults. These are restored whenever a
// logging session finishes or the engine is reset.
type DlogConfig struct {
	Period        float32       `yaml:"period"`         // seconds
	Duration      float32       `yaml:"duration"`       // seconds
	TriggerSource string        `yaml:"trigger_source"` // immediate, bus, manual, pin1, pin2
	Path          string        `yaml:"path"`
	OmitMissed    bool          `yaml:"omit_missed"` // Drop rows for missed boundaries instead of NaN filler
	Jitter        bool          `yaml:"jitter"`      // Prefix each record with sample lateness
	TickInterval  time.Duration `yaml:"tick_interval"`
}

// StorageConfig contains disk writer sizing.
type StorageConfig struct {
	Dir        string `yaml:"dir"`
	QueueDepth int    `yaml:"queue_depth"` // Bound of the request channel
	Blocks     int    `yaml:"blocks"`      // Number of 4096 byte blocks (2 = double buffer)
}

// PlaybackConfig contains defaults of the recording view.
type PlaybackConfig struct {
	PageSize      int     `yaml:"page_size"`
	MaxRecords    int     `yaml:"max_records"`
	VoltagePerDiv float32 `yaml:"voltage_per_div"`
	CurrentPerDiv float32 `yaml:"current_per_div"`
	PowerPerDiv   float32 `yaml:"power_per_div"`
}

// MockConfig contains simulated PSU configuration.
type MockConfig struct {
	Voltage    []float64     `yaml:"voltage"`     // Output voltage per channel (V)
	Current    []float64     `yaml:"current"`     // Load current per channel (A)
	NoiseLevel float64       `yaml:"noise_level"` // Relative noise amplitude
	SampleRate time.Duration `yaml:"sample_rate"` // Monitor refresh interval
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "COM3", // Default for Windows, should be "/dev/ttyACM0" on Linux/Mac
			BaudRate: 115200,
		},
		Channels: []ChannelConfig{
			{VoltageFullScale: 40, CurrentFullScale: 5},
			{VoltageFullScale: 40, CurrentFullScale: 5},
		},
		Dlog: DlogConfig{
			Period:        0.02,
			Duration:      60,
			TriggerSource: "immediate",
			TickInterval:  time.Millisecond,
		},
		Storage: StorageConfig{
			Dir:        ".",
			QueueDepth: 16,
			Blocks:     2,
		},
		Playback: PlaybackConfig{
			PageSize:      480,
			MaxRecords:    65536,
			VoltagePerDiv: 5,
			CurrentPerDiv: 1,
			PowerPerDiv:   10,
		},
		Mock: MockConfig{
			Voltage:    []float64{12.0, 5.0},
			Current:    []float64{0.5, 1.2},
			NoiseLevel: 0.002,
			SampleRate: 10 * time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if len(cfg.Channels) > MaxChannels {
		return nil, fmt.Errorf("too many channels: %d (max %d)", len(cfg.Channels), MaxChannels)
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// NumChannels returns the number of configured output channels.
func (c *Config) NumChannels() int {
	return len(c.Channels)
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if len(c.Channels) == 0 {
		c.Channels = def.Channels
	}
	for i := range c.Channels {
		if c.Channels[i].VoltageFullScale == 0 {
			c.Channels[i].VoltageFullScale = def.Channels[0].VoltageFullScale
		}
		if c.Channels[i].CurrentFullScale == 0 {
			c.Channels[i].CurrentFullScale = def.Channels[0].CurrentFullScale
		}
	}

	if c.Dlog.Period == 0 {
		c.Dlog.Period = def.Dlog.Period
	}
	if c.Dlog.Duration == 0 {
		c.Dlog.Duration = def.Dlog.Duration
	}
	if c.Dlog.TriggerSource == "" {
		c.Dlog.TriggerSource = def.Dlog.TriggerSource
	}
	if c.Dlog.TickInterval == 0 {
		c.Dlog.TickInterval = def.Dlog.TickInterval
	}

	if c.Storage.Dir == "" {
		c.Storage.Dir = def.Storage.Dir
	}
	if c.Storage.QueueDepth == 0 {
		c.Storage.QueueDepth = def.Storage.QueueDepth
	}
	if c.Storage.Blocks == 0 {
		c.Storage.Blocks = def.Storage.Blocks
	}

	if c.Playback.PageSize == 0 {
		c.Playback.PageSize = def.Playback.PageSize
	}
	if c.Playback.MaxRecords == 0 {
		c.Playback.MaxRecords = def.Playback.MaxRecords
	}
	if c.Playback.VoltagePerDiv == 0 {
		c.Playback.VoltagePerDiv = def.Playback.VoltagePerDiv
	}
	if c.Playback.CurrentPerDiv == 0 {
		c.Playback.CurrentPerDiv = def.Playback.CurrentPerDiv
	}
	if c.Playback.PowerPerDiv == 0 {
		c.Playback.PowerPerDiv = def.Playback.PowerPerDiv
	}

	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
	if len(c.Mock.Voltage) == 0 {
		c.Mock.Voltage = def.Mock.Voltage
	}
	if len(c.Mock.Current) == 0 {
		c.Mock.Current = def.Mock.Current
	}
}
