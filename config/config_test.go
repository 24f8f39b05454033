package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotelio/admission/ratelimit"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
mode: strict
backend: redis
redis:
  addr: redis.internal:6379
  db: 2
global:
  name: global-default
  scope: per_ip
  requests_per_minute: 1000
roles:
  anonymous:
    scope: per_ip
    requests_per_minute: 60
endpoints:
  - name: login
    scope: per_ip
    paths: ["/api/v1/auth/login"]
    methods: ["POST"]
    requests_per_minute: 10
    burst_limit: 3
    burst_window_seconds: 10
    custom_error_message: "Too many login attempts, slow down"
tiers:
  premium:
    scope: per_hotel
    requests_per_minute: 3000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "strict", cfg.Mode)
	assert.Equal(t, "redis", cfg.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 3*time.Second, cfg.StoreTimeout(), "default store timeout")

	rs := cfg.RuleSet()
	require.NotNil(t, rs.Global)
	assert.Equal(t, "global-default", rs.Global.Name)
	require.Contains(t, rs.Roles, "anonymous")
	assert.Equal(t, "role-anonymous", rs.Roles["anonymous"].Name, "unnamed rules get derived names")
	require.Len(t, rs.Endpoints, 1)

	login := rs.Endpoints[0]
	assert.Equal(t, "login", login.Name)
	assert.Equal(t, 10*time.Second, login.BurstWindow)
	assert.True(t, login.Block, "block defaults to true")
	assert.Equal(t, "Too many login attempts, slow down", login.Message)

	require.Contains(t, rs.Tiers, "premium")
	assert.Equal(t, ratelimit.ScopePerHotel, rs.Tiers["premium"].Scope)
}

func TestLoadRejectsRuleWithoutLimits(t *testing.T) {
	path := writeConfig(t, `
global:
  name: global-default
  scope: per_ip
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ratelimit.ErrNoLimits)
}

func TestLoadRejectsBadMode(t *testing.T) {
	path := writeConfig(t, `
mode: yolo
global:
  scope: per_ip
  requests_per_minute: 10
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
}

func TestLoadRejectsBadBackend(t *testing.T) {
	path := writeConfig(t, `
backend: postgres
global:
  scope: per_ip
  requests_per_minute: 10
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend")
}

func TestLoadRequiresGlobalRule(t *testing.T) {
	path := writeConfig(t, `
endpoints:
  - scope: per_ip
    requests_per_minute: 10
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "global")
}

func TestBlockRequestExplicitFalse(t *testing.T) {
	path := writeConfig(t, `
global:
  scope: per_ip
  requests_per_minute: 10
  block_request: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.RuleSet().Global.Block)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ADMISSION_MODE", "strict")
	t.Setenv("ADMISSION_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "override:6379")
	t.Setenv("REDIS_DB", "5")

	path := writeConfig(t, `
mode: lenient
backend: memory
global:
  scope: per_ip
  requests_per_minute: 10
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "strict", cfg.Mode)
	assert.Equal(t, "redis", cfg.Backend)
	assert.Equal(t, "override:6379", cfg.Redis.Addr)
	assert.Equal(t, 5, cfg.Redis.DB)
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, string(ratelimit.ModeLenient), cfg.Mode)
	assert.Equal(t, "memory", cfg.Backend)

	rs := cfg.RuleSet()
	require.NoError(t, rs.Validate())
	assert.NotEmpty(t, rs.Endpoints)
	assert.Contains(t, rs.Tiers, "basic")
	assert.Contains(t, rs.Tiers, "standard")
	assert.Contains(t, rs.Tiers, "premium")
}
