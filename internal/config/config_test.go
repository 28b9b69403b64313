package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_NoConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 445, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.Equal(t, "ntlm", cfg.Auth.Mechanism)
	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
}

func TestLoad_DefaultLocation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "smbc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "smbc", "config.yaml"), []byte("auth:\n  workgroup: WG\n"), 0o600))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "WG", cfg.Auth.Workgroup)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 1445
  timeout: 5s
  require_signing: true
  max_open_handles: 16
auth:
  workgroup: WG
  username: alice
  password: wonderland
logging:
  level: debug
  format: json
metrics:
  enabled: true
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 1445, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.Timeout)
	assert.True(t, cfg.Server.RequireSigning)
	assert.Equal(t, 16, cfg.Server.MaxOpenHandles)
	assert.Equal(t, AuthConfig{Workgroup: "WG", Username: "alice", Password: "wonderland", Mechanism: "ntlm"}, cfg.Auth)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_TimeoutInSeconds(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  timeout: 10\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Server.Timeout)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SMBC_AUTH_USERNAME", "bob")
	t.Setenv("SMBC_SERVER_TIMEOUT", "2")
	t.Setenv("SMBC_LOGGING_LEVEL", "error")

	cfg, err := Load(writeConfig(t, "auth:\n  username: alice\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, "bob", cfg.Auth.Username)
	assert.Equal(t, 2*time.Second, cfg.Server.Timeout)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
}

func TestLoad_FlagOverride(t *testing.T) {
	t.Setenv("SMBC_AUTH_USERNAME", "bob")

	fs := pflag.NewFlagSet("smbc", pflag.ContinueOnError)
	fs.String("user", "", "")
	fs.String("workgroup", "", "")
	fs.Duration("timeout", 0, "")
	fs.Bool("metrics", false, "")
	require.NoError(t, fs.Parse([]string{"--user", "carol", "--timeout", "1m"}))

	cfg, err := Load(writeConfig(t, "auth:\n  workgroup: WG\n"), fs)
	require.NoError(t, err)

	assert.Equal(t, "carol", cfg.Auth.Username)
	assert.Equal(t, time.Minute, cfg.Server.Timeout)

	// unchanged flags leave file values alone
	assert.Equal(t, "WG", cfg.Auth.Workgroup)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_Invalid(t *testing.T) {
	for name, content := range map[string]string{
		"kerberos without krb5 config": "auth:\n  mechanism: kerberos\n",
		"unknown mechanism":            "auth:\n  mechanism: digest\n",
		"bad log level":                "logging:\n  level: chatty\n",
		"bad log format":               "logging:\n  format: xml\n",
		"port out of range":            "server:\n  port: 70000\n",
		"negative handles":             "server:\n  max_open_handles: -1\n",
		"http proxy":                   "server:\n  socks5: http://proxy:3128\n",
		"password without user":        "auth:\n  password: secret\n",
		"bad duration":                 "server:\n  timeout: soon\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content), nil)
			require.Error(t, err)
		})
	}
}

func TestValidate_Kerberos(t *testing.T) {
	cfg := Default()
	cfg.Auth.Mechanism = "kerberos"
	cfg.Auth.Krb5Config = "/etc/krb5.conf"
	require.NoError(t, Validate(cfg))

	cfg.Auth.Krb5Config = ""
	err := Validate(cfg)
	require.ErrorContains(t, err, "Config.Auth.Krb5Config")
}
