package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr error
	}{
		{
			name: "valid single window",
			rule: Rule{Name: "api", Scope: ScopePerIP, RequestsPerMinute: 10},
		},
		{
			name: "valid burst pair",
			rule: Rule{Name: "login", Scope: ScopePerIP, BurstLimit: 3, BurstWindow: 10 * time.Second},
		},
		{
			name:    "no limits fails fast",
			rule:    Rule{Name: "empty", Scope: ScopeGlobal},
			wantErr: ErrNoLimits,
		},
		{
			name:    "burst limit without window",
			rule:    Rule{Name: "halfburst", Scope: ScopePerIP, BurstLimit: 3},
			wantErr: nil, // distinct config error, checked below
		},
		{
			name:    "unknown scope",
			rule:    Rule{Name: "odd", Scope: "per_galaxy", RequestsPerMinute: 1},
			wantErr: nil,
		},
		{
			name:    "colon in name",
			rule:    Rule{Name: "a:b", Scope: ScopeGlobal, RequestsPerMinute: 1},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			switch tt.name {
			case "valid single window", "valid burst pair":
				assert.NoError(t, err)
			default:
				require.Error(t, err)
				var cfgErr *ConfigError
				assert.True(t, errors.As(err, &cfgErr), "want ConfigError, got %T", err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
			}
		})
	}
}

func TestRuleWindows(t *testing.T) {
	rule := Rule{
		Name:              "full",
		Scope:             ScopePerUser,
		RequestsPerSecond: 5,
		RequestsPerMinute: 100,
		RequestsPerHour:   1000,
		RequestsPerDay:    5000,
		BurstLimit:        10,
		BurstWindow:       10 * time.Second,
	}
	windows := rule.Windows()
	require.Len(t, windows, 5)

	kinds := make(map[WindowKind]Window, len(windows))
	for _, w := range windows {
		kinds[w.Kind] = w
	}
	assert.Equal(t, int64(5), kinds[WindowSecond].Limit)
	assert.Equal(t, time.Minute, kinds[WindowMinute].Duration)
	assert.Equal(t, 24*time.Hour, kinds[WindowDay].Duration)
	assert.Equal(t, 10*time.Second, kinds[WindowBurst].Duration)
}

func TestRuleMatches(t *testing.T) {
	rule := Rule{
		Name:              "webhook",
		Scope:             ScopePerEndpoint,
		RequestsPerMinute: 60,
		Paths:             []string{"/api/v1/webhooks/"},
		Methods:           []string{"POST"},
	}
	assert.True(t, rule.Matches("/api/v1/webhooks/green-api", "POST"))
	assert.True(t, rule.Matches("/api/v1/webhooks/green-api", "post"))
	assert.False(t, rule.Matches("/api/v1/webhooks/green-api", "GET"))
	assert.False(t, rule.Matches("/api/v1/hotels", "POST"))

	open := Rule{Name: "open", Scope: ScopeGlobal, RequestsPerMinute: 1}
	assert.True(t, open.Matches("/anything", "DELETE"))
}

func TestRuleExempts(t *testing.T) {
	rule := Rule{
		Name:              "api",
		Scope:             ScopePerIP,
		RequestsPerMinute: 10,
		ExemptIPs:         []string{"10.0.0.1", "not-an-ip", " 192.168.1.7 "},
		ExemptUsers:       []string{"42"},
	}

	assert.True(t, rule.Exempts(&RequestContext{ClientIP: "10.0.0.1"}))
	assert.True(t, rule.Exempts(&RequestContext{ClientIP: "192.168.1.7"}))
	assert.True(t, rule.Exempts(&RequestContext{ClientIP: "1.2.3.4", UserID: "42"}))
	assert.False(t, rule.Exempts(&RequestContext{ClientIP: "1.2.3.4"}))
	// Malformed entries and unparseable client addresses are a no-match,
	// never a crash.
	assert.False(t, rule.Exempts(&RequestContext{ClientIP: "not-an-ip"}))

	roled := Rule{
		Name:              "staff-only",
		Scope:             ScopePerUser,
		RequestsPerMinute: 10,
		UserRoles:         []string{"staff", "manager"},
	}
	assert.False(t, roled.Exempts(&RequestContext{UserRole: "staff"}))
	assert.True(t, roled.Exempts(&RequestContext{UserRole: "anonymous"}))
}

func TestRuleSetValidate(t *testing.T) {
	rs := &RuleSet{}
	require.Error(t, rs.Validate(), "missing global rule must be rejected")

	rs = &RuleSet{
		Global: &Rule{Name: "global", Scope: ScopePerIP, RequestsPerMinute: 100},
		Endpoints: []*Rule{
			{Name: "global", Scope: ScopePerEndpoint, RequestsPerMinute: 10},
		},
	}
	err := rs.Validate()
	require.Error(t, err, "duplicate names must be rejected")
	assert.Contains(t, err.Error(), "duplicate")

	rs.Endpoints[0].Name = "webhook"
	assert.NoError(t, rs.Validate())
}
