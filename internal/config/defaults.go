package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPort      = 445
	DefaultTimeout   = 30 * time.Second
	DefaultMechanism = "ntlm"
)

// setDefaults registers every key with viper so environment variables are
// picked up by Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.timeout", DefaultTimeout)
	v.SetDefault("server.socks5", "")
	v.SetDefault("server.require_signing", false)
	v.SetDefault("server.max_open_handles", 0)

	v.SetDefault("auth.workgroup", "")
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.mechanism", DefaultMechanism)
	v.SetDefault("auth.krb5_config", "")
	v.SetDefault("auth.spn", "")

	v.SetDefault("logging.level", "WARN")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("metrics.enabled", false)
}

// ApplyDefaults fills zero values left after decoding and normalizes case.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}

	cfg.Auth.Mechanism = strings.ToLower(cfg.Auth.Mechanism)
	if cfg.Auth.Mechanism == "" {
		cfg.Auth.Mechanism = DefaultMechanism
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "WARN"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{Timeout: DefaultTimeout},
	}
	ApplyDefaults(cfg)
	return cfg
}
