package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"netrecon/scanerrors"
)

// TunablesLoader loads the process-wide Defaults from an optional YAML
// file and environment variables under the NETRECON_ prefix. Missing files
// are not an error: Defaults simply keep their hardcoded values.
type TunablesLoader struct {
	configPath string
	v          *viper.Viper
}

// NewTunablesLoader builds a loader that searches configPath (if non-empty),
// "./configs" and "." for a "netrecon.yaml" file.
func NewTunablesLoader(configPath string) *TunablesLoader {
	return &TunablesLoader{configPath: configPath, v: viper.New()}
}

// Load applies any discovered overrides to Defaults in place. It never
// fails on a missing config file; a malformed file that is found, or an
// out-of-range value, is reported as an error.
func (tl *TunablesLoader) Load() error {
	tl.v.SetConfigType("yaml")
	tl.v.SetConfigName("netrecon")
	if tl.configPath != "" {
		tl.v.AddConfigPath(tl.configPath)
	}
	tl.v.AddConfigPath("./configs")
	tl.v.AddConfigPath(".")

	tl.v.SetEnvPrefix("NETRECON")
	tl.v.AutomaticEnv()
	tl.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	tl.v.SetDefault("timeout", Defaults.Timeout.String())
	tl.v.SetDefault("max_workers", Defaults.MaxWorkers)
	tl.v.SetDefault("idle_scan_noise_retries", Defaults.IdleScanNoiseRetries)

	if err := tl.v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return fmt.Errorf("config: reading netrecon.yaml: %w", err)
		}
	}

	timeoutStr := tl.v.GetString("timeout")
	d, err := time.ParseDuration(timeoutStr)
	if err != nil || d <= 0 {
		return fmt.Errorf("%w: timeout %q must be a positive duration", scanerrors.ErrInvalidConfiguration, timeoutStr)
	}
	Defaults.Timeout = d

	maxWorkers := tl.v.GetInt("max_workers")
	if maxWorkers <= 0 {
		return fmt.Errorf("%w: max_workers must be positive, got %d", scanerrors.ErrInvalidConfiguration, maxWorkers)
	}
	Defaults.MaxWorkers = maxWorkers

	retries := tl.v.GetInt("idle_scan_noise_retries")
	if retries < 0 {
		return fmt.Errorf("%w: idle_scan_noise_retries must be >= 0, got %d", scanerrors.ErrInvalidConfiguration, retries)
	}
	Defaults.IdleScanNoiseRetries = retries
	return nil
}

// WatchForChanges re-applies Load whenever the discovered config file
// changes on disk, mirroring viper's own hot-reload hook.
func (tl *TunablesLoader) WatchForChanges(onChange func(fsnotify.Event)) {
	tl.v.OnConfigChange(func(e fsnotify.Event) {
		_ = tl.Load()
		if onChange != nil {
			onChange(e)
		}
	})
	tl.v.WatchConfig()
}
