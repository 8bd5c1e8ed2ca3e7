package config

import (
	"fmt"
	"time"
)

// Config is the top-level, immutable configuration bundle for the
// autoscaler daemon. It is loaded once at startup and passed into every
// component's constructor; nothing mutates it afterwards.
type Config struct {
	Host  string `mapstructure:"host"`
	Token string `mapstructure:"token"`

	MaxLoad     float64 `mapstructure:"max_load"`
	PodLoadMax  float64 `mapstructure:"pod_load_max"`
	Delta       float64 `mapstructure:"delta"`
	Gap         int     `mapstructure:"gap"`
	Penalty     float64 `mapstructure:"penalty"`
	SleepSecond int     `mapstructure:"sleep_second"`

	MemorySize    int `mapstructure:"memory_size"`
	TrainSize     int `mapstructure:"train_size"`
	MaxDataSize   int `mapstructure:"max_data_size"`
	MinMemorySize int `mapstructure:"min_memory_size"`

	Prod bool `mapstructure:"prod"`

	StateDir       string        `mapstructure:"state_dir"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
	LogLevel       string        `mapstructure:"log_level"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PodLoadMaxPercent is pod_load_max expressed as a 0..1 fraction, the
// form the capacity planner's constraints use.
func (c Config) PodLoadMaxPercent() float64 {
	return c.PodLoadMax / 100
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		MaxLoad:     95,
		PodLoadMax:  90,
		Delta:       0.2,
		Gap:         4,
		Penalty:     0.001,
		SleepSecond: 15,

		MemorySize:    100,
		TrainSize:     120,
		MaxDataSize:   500,
		MinMemorySize: 11,

		Prod: true,

		StateDir:       ".",
		MetricsAddr:    ":9090",
		LogLevel:       "info",
		RequestTimeout: 10 * time.Second,
	}
}

// Validate rejects out-of-range settings.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must be set")
	}
	if c.MaxLoad <= 0 || c.MaxLoad > 100 {
		return fmt.Errorf("max_load must be in (0,100], got %v", c.MaxLoad)
	}
	if c.PodLoadMax <= 0 || c.PodLoadMax > 100 {
		return fmt.Errorf("pod_load_max must be in (0,100], got %v", c.PodLoadMax)
	}
	if c.Delta < 0 || c.Delta > 1 {
		return fmt.Errorf("delta must be in [0,1], got %v", c.Delta)
	}
	if c.Gap <= 0 {
		return fmt.Errorf("gap must be positive, got %d", c.Gap)
	}
	if c.Penalty < 0 {
		return fmt.Errorf("penalty must be non-negative, got %v", c.Penalty)
	}
	if c.SleepSecond <= 0 {
		return fmt.Errorf("sleep_second must be positive, got %d", c.SleepSecond)
	}
	if c.MemorySize <= 0 {
		return fmt.Errorf("memory_size must be positive, got %d", c.MemorySize)
	}
	if c.TrainSize <= 0 {
		return fmt.Errorf("train_size must be positive, got %d", c.TrainSize)
	}
	if c.MaxDataSize <= 0 {
		return fmt.Errorf("max_data_size must be positive, got %d", c.MaxDataSize)
	}
	if c.MinMemorySize <= 0 {
		return fmt.Errorf("min_memory_size must be positive, got %d", c.MinMemorySize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.StateDir == "" {
		c.StateDir = "."
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}
