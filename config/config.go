// Package config loads admission-control configuration from YAML files and
// environment variables. Rules are loaded once at process start; there is no
// hot reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hotelio/admission/ratelimit"
)

// RuleConfig is the serialized form of a single rule.
type RuleConfig struct {
	Name               string   `yaml:"name"`
	Scope              string   `yaml:"scope"`
	RequestsPerSecond  int64    `yaml:"requests_per_second"`
	RequestsPerMinute  int64    `yaml:"requests_per_minute"`
	RequestsPerHour    int64    `yaml:"requests_per_hour"`
	RequestsPerDay     int64    `yaml:"requests_per_day"`
	BurstLimit         int64    `yaml:"burst_limit"`
	BurstWindowSeconds int64    `yaml:"burst_window_seconds"`
	Paths              []string `yaml:"paths"`
	Methods            []string `yaml:"methods"`
	UserRoles          []string `yaml:"user_roles"`
	ExemptIPs          []string `yaml:"exempt_ips"`
	ExemptUsers        []string `yaml:"exempt_users"`
	BlockRequest       *bool    `yaml:"block_request"`
	CustomErrorMessage string   `yaml:"custom_error_message"`
}

// Config is the full admission-control configuration document.
type Config struct {
	// Mode is "lenient" (fail open, the default) or "strict" (fail closed).
	Mode string `yaml:"mode"`
	// Backend selects the counter store: "memory" or "redis".
	Backend string `yaml:"backend"`

	Redis RedisConfig `yaml:"redis"`

	// StoreTimeoutSeconds bounds each counter store round-trip.
	StoreTimeoutSeconds int64 `yaml:"store_timeout_seconds"`

	Global    *RuleConfig           `yaml:"global"`
	Roles     map[string]RuleConfig `yaml:"roles"`
	Endpoints []RuleConfig          `yaml:"endpoints"`
	Tiers     map[string]RuleConfig `yaml:"tiers"`
}

// RedisConfig carries connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Load reads a YAML config file, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.SetDefaults()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration used when no file is given:
// lenient mode, in-memory backend, and the platform's standard rules.
func Default() *Config {
	cfg := &Config{
		Global: &RuleConfig{
			Name:              "global-default",
			Scope:             string(ratelimit.ScopePerIP),
			RequestsPerMinute: 1000,
			RequestsPerHour:   20000,
		},
		Roles: map[string]RuleConfig{
			"anonymous": {
				Name:               "role-anonymous",
				Scope:              string(ratelimit.ScopePerIP),
				RequestsPerMinute:  60,
				BurstLimit:         10,
				BurstWindowSeconds: 10,
			},
			"staff": {
				Name:              "role-staff",
				Scope:             string(ratelimit.ScopePerUser),
				RequestsPerMinute: 300,
			},
		},
		Endpoints: []RuleConfig{
			{
				Name:              "webhooks",
				Scope:             string(ratelimit.ScopePerEndpoint),
				Paths:             []string{"/api/v1/webhooks/"},
				RequestsPerMinute: 60,
			},
			{
				Name:               "login",
				Scope:              string(ratelimit.ScopePerIP),
				Paths:              []string{"/api/v1/auth/login"},
				Methods:            []string{"POST"},
				RequestsPerMinute:  10,
				BurstLimit:         3,
				BurstWindowSeconds: 10,
				CustomErrorMessage: "Too many login attempts, slow down",
			},
		},
		Tiers: map[string]RuleConfig{
			"basic":    {Name: "tier-basic", Scope: string(ratelimit.ScopePerHotel), RequestsPerMinute: 120, RequestsPerDay: 10000},
			"standard": {Name: "tier-standard", Scope: string(ratelimit.ScopePerHotel), RequestsPerMinute: 600, RequestsPerDay: 100000},
			"premium":  {Name: "tier-premium", Scope: string(ratelimit.ScopePerHotel), RequestsPerMinute: 3000},
		},
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		c.Mode = string(ratelimit.ModeLenient)
	}
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.StoreTimeoutSeconds == 0 {
		c.StoreTimeoutSeconds = 3
	}
}

// ApplyEnv applies environment overrides on top of the file values:
// ADMISSION_MODE, ADMISSION_BACKEND, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ADMISSION_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("ADMISSION_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
}

// Validate rejects unusable configuration before any traffic flows.
func (c *Config) Validate() error {
	switch ratelimit.Mode(c.Mode) {
	case ratelimit.ModeLenient, ratelimit.ModeStrict:
	default:
		return fmt.Errorf("invalid mode %q, must be %q or %q", c.Mode, ratelimit.ModeLenient, ratelimit.ModeStrict)
	}
	switch c.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid backend %q, must be \"memory\" or \"redis\"", c.Backend)
	}
	if c.Global == nil {
		return fmt.Errorf("global rule is required")
	}
	return c.RuleSet().Validate()
}

// RuleSet converts the serialized rules into the engine's rule set.
func (c *Config) RuleSet() *ratelimit.RuleSet {
	rs := &ratelimit.RuleSet{}
	if c.Global != nil {
		rs.Global = c.Global.rule("global-default")
	}
	if len(c.Roles) > 0 {
		rs.Roles = make(map[string]*ratelimit.Rule, len(c.Roles))
		for role, rc := range c.Roles {
			rs.Roles[role] = rc.rule("role-" + role)
		}
	}
	for i := range c.Endpoints {
		rc := c.Endpoints[i]
		rs.Endpoints = append(rs.Endpoints, rc.rule(fmt.Sprintf("endpoint-%d", i)))
	}
	if len(c.Tiers) > 0 {
		rs.Tiers = make(map[string]*ratelimit.Rule, len(c.Tiers))
		for tier, rc := range c.Tiers {
			rs.Tiers[tier] = rc.rule("tier-" + tier)
		}
	}
	return rs
}

// StoreTimeout returns the configured store timeout as a duration.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

// rule converts one RuleConfig, defaulting the name and the block flag.
func (rc *RuleConfig) rule(defaultName string) *ratelimit.Rule {
	name := rc.Name
	if name == "" {
		name = defaultName
	}
	block := true
	if rc.BlockRequest != nil {
		block = *rc.BlockRequest
	}
	return &ratelimit.Rule{
		Name:              name,
		Scope:             ratelimit.Scope(rc.Scope),
		RequestsPerSecond: rc.RequestsPerSecond,
		RequestsPerMinute: rc.RequestsPerMinute,
		RequestsPerHour:   rc.RequestsPerHour,
		RequestsPerDay:    rc.RequestsPerDay,
		BurstLimit:        rc.BurstLimit,
		BurstWindow:       time.Duration(rc.BurstWindowSeconds) * time.Second,
		Paths:             rc.Paths,
		Methods:           rc.Methods,
		UserRoles:         rc.UserRoles,
		ExemptIPs:         rc.ExemptIPs,
		ExemptUsers:       rc.ExemptUsers,
		Block:             block,
		Message:           rc.CustomErrorMessage,
	}
}
