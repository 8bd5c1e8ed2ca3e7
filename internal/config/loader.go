package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Load reads configuration from the documented defaults, an optional
// file, environment variables (prefixed AUTOSCALE_), and CLI flags, in
// that order of increasing precedence. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()

	v := viper.New()
	for key, val := range defaultsMap(cfg) {
		v.SetDefault(key, val)
	}

	if flags != nil {
		_ = v.BindPFlag("host", flags.Lookup("host"))
		_ = v.BindPFlag("token", flags.Lookup("token"))
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("autoscaler")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/autoscaler")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("AUTOSCALE")
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultsMap(cfg Config) map[string]any {
	return map[string]any{
		"host":            cfg.Host,
		"token":           cfg.Token,
		"max_load":        cfg.MaxLoad,
		"pod_load_max":    cfg.PodLoadMax,
		"delta":           cfg.Delta,
		"gap":             cfg.Gap,
		"penalty":         cfg.Penalty,
		"sleep_second":    cfg.SleepSecond,
		"memory_size":     cfg.MemorySize,
		"train_size":      cfg.TrainSize,
		"max_data_size":   cfg.MaxDataSize,
		"min_memory_size": cfg.MinMemorySize,
		"prod":            cfg.Prod,
		"state_dir":       cfg.StateDir,
		"metrics_addr":    cfg.MetricsAddr,
		"log_level":       cfg.LogLevel,
		"request_timeout": cfg.RequestTimeout,
	}
}
