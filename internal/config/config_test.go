package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "ssh:\n  password: secret\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "timekpr-remote", cfg.SSH.Username)
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.Equal(t, 10*time.Second, cfg.SSH.Timeout())
	assert.Equal(t, 15*time.Second, cfg.Worker.Interval())
	assert.Equal(t, 2*time.Second, cfg.Worker.StopTimeout())
	assert.False(t, cfg.Worker.ManualStart)
	assert.Equal(t, 7, cfg.Dashboard.Days)
	assert.Contains(t, cfg.Database.DSN, "postgres://")
}

func TestLoadExplicitValuesWin(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 9000
ssh:
  username: operator
  password: secret
  port: 2222
  timeout_seconds: 3
worker:
  interval_seconds: 60
  manual_start: true
`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "operator", cfg.SSH.Username)
	assert.Equal(t, 2222, cfg.SSH.Port)
	assert.Equal(t, 3*time.Second, cfg.SSH.Timeout())
	assert.Equal(t, time.Minute, cfg.Worker.Interval())
	assert.True(t, cfg.Worker.ManualStart)
}

func TestLoadRequiresSSHPassword(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ssh.password")
}

func TestLoadValidatesLDAP(t *testing.T) {
	_, err := Load(writeConfig(t, `
ssh:
  password: secret
ldap:
  enabled: true
  url: ldaps://dc.example.org
`))
	require.Error(t, err)

	cfg, err := Load(writeConfig(t, `
ssh:
  password: secret
ldap:
  enabled: true
  url: ldaps://dc.example.org
  bind_dn: cn=svc,dc=example,dc=org
  bind_password: svc
  base_dn: dc=example,dc=org
  group_mapping:
    cn=admins,dc=example,dc=org: admin
`))
	require.NoError(t, err)
	assert.Equal(t, "(sAMAccountName=%s)", cfg.LDAP.UserFilter)
	assert.Equal(t, "sAMAccountName", cfg.LDAP.UsernameAttr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
