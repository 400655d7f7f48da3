// SPDX-License-Identifier: MPL-2.0

// Package engineconfig loads the engine's own ambient defaults — retry,
// timeout, SSH pool tuning, Docker binary discovery, Kubernetes log
// reconnect policy — from a TOML file via viper, XDG-aware the same
// way the rest of the ecosystem locates its config directory. It does
// not know about recipes, CLI flags, or any other out-of-scope
// concern; it is engine-only.
package engineconfig

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

const (
	// AppName names the XDG subdirectory engineconfig reads from.
	AppName = "xec"
	// ConfigFileName is the base name of the config file, without
	// extension.
	ConfigFileName = "engine"
	// ConfigFileExt is the format engineconfig reads and writes.
	ConfigFileExt = "toml"
)

// SSHPoolConfig tunes the SSH connection pool (§4.4.1).
type SSHPoolConfig struct {
	KeepAliveMs      int `mapstructure:"keep_alive_ms"`
	KeepAliveMaxFail int `mapstructure:"keep_alive_max_fail"`
	IdleTimeoutMs    int `mapstructure:"idle_timeout_ms"`
	MaxMultiplexed   int `mapstructure:"max_multiplexed"`
}

// DockerConfig tunes Docker/Podman CLI discovery.
type DockerConfig struct {
	BinaryCandidates []string `mapstructure:"binary_candidates"`
	AutoCreateImage  string   `mapstructure:"auto_create_image"`
	AutoCreateEnable bool     `mapstructure:"auto_create_enable"`
}

// K8sLogReconnectConfig resolves the Open Question on kubectl log-
// streaming reconnects: a fixed exponential-backoff strategy, capped,
// and exposed here rather than hardcoded.
type K8sLogReconnectConfig struct {
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
	MaxAttempts int `mapstructure:"max_attempts"`
}

// Config is the engine's full set of ambient defaults.
type Config struct {
	DefaultTimeoutMs int                   `mapstructure:"default_timeout_ms"`
	MaxBufferBytes   int                   `mapstructure:"max_buffer_bytes"`
	LogLevel         string                `mapstructure:"log_level"`
	SSHPool          SSHPoolConfig         `mapstructure:"ssh_pool"`
	Docker           DockerConfig          `mapstructure:"docker"`
	K8sLogReconnect  K8sLogReconnectConfig `mapstructure:"k8s_log_reconnect"`
}

// Default returns the engine's built-in defaults, used when no config
// file is present.
func Default() Config {
	return Config{
		DefaultTimeoutMs: int(120 * time.Second / time.Millisecond),
		MaxBufferBytes:   10 << 20,
		LogLevel:         "info",
		SSHPool: SSHPoolConfig{
			KeepAliveMs:      10000,
			KeepAliveMaxFail: 3,
			IdleTimeoutMs:    300000,
			MaxMultiplexed:   8,
		},
		Docker: DockerConfig{
			BinaryCandidates: []string{"docker", "podman"},
			AutoCreateImage:  "alpine:latest",
			AutoCreateEnable: false,
		},
		K8sLogReconnect: K8sLogReconnectConfig{
			BaseDelayMs: 500,
			MaxDelayMs:  10000,
			MaxAttempts: 5,
		},
	}
}

// Dir returns the XDG-aware directory engineconfig reads its file
// from: $XEC_CONFIG_DIR if set, else $XDG_CONFIG_HOME/xec, else the
// platform default user-config location.
func Dir() (string, error) {
	if d := os.Getenv("XEC_CONFIG_DIR"); d != "" {
		return d, nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" && runtime.GOOS != "windows" {
		return filepath.Join(xdg, AppName), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppName), nil
}

// Load reads Config from disk via viper, falling back to Default for
// any field the file doesn't set and returning Default unchanged if no
// file exists at all.
func Load() (Config, error) {
	cfg := Default()

	dir, err := Dir()
	if err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType(ConfigFileExt)
	v.AddConfigPath(dir)
	v.SetEnvPrefix("XEC")
	v.AutomaticEnv()

	v.SetDefault("default_timeout_ms", cfg.DefaultTimeoutMs)
	v.SetDefault("max_buffer_bytes", cfg.MaxBufferBytes)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("ssh_pool.keep_alive_ms", cfg.SSHPool.KeepAliveMs)
	v.SetDefault("ssh_pool.keep_alive_max_fail", cfg.SSHPool.KeepAliveMaxFail)
	v.SetDefault("ssh_pool.idle_timeout_ms", cfg.SSHPool.IdleTimeoutMs)
	v.SetDefault("ssh_pool.max_multiplexed", cfg.SSHPool.MaxMultiplexed)
	v.SetDefault("docker.binary_candidates", cfg.Docker.BinaryCandidates)
	v.SetDefault("docker.auto_create_image", cfg.Docker.AutoCreateImage)
	v.SetDefault("docker.auto_create_enable", cfg.Docker.AutoCreateEnable)
	v.SetDefault("k8s_log_reconnect.base_delay_ms", cfg.K8sLogReconnect.BaseDelayMs)
	v.SetDefault("k8s_log_reconnect.max_delay_ms", cfg.K8sLogReconnect.MaxDelayMs)
	v.SetDefault("k8s_log_reconnect.max_attempts", cfg.K8sLogReconnect.MaxAttempts)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
