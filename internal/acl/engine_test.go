package acl

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"egress-gate/internal/config"
)

func newTestEngine(t *testing.T, cfg config.AccessControlConfig) *Engine {
	t.Helper()
	return NewEngine(cfg, newTestStore(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDecideFirstMatchWins(t *testing.T) {
	denyFirst := config.AccessControlConfig{
		DefaultAction: "deny",
		Rules: []config.AccessRule{
			{Networks: []string{"10.0.0.0/8"}, Action: "deny"},
			{Networks: []string{"10.0.0.0/8"}, Action: "allow"},
		},
	}
	allowFirst := config.AccessControlConfig{
		DefaultAction: "deny",
		Rules: []config.AccessRule{
			{Networks: []string{"10.0.0.0/8"}, Action: "allow"},
			{Networks: []string{"10.0.0.0/8"}, Action: "deny"},
		},
	}

	// Both rules match the client; only the first may decide. A deny rule
	// with no whitelist permits, so distinguish the rules by a whitelist.
	dir := t.TempDir()
	wl := writeList(t, dir, "wl.txt", "only.corp.local\n")
	denyFirst.Rules[0].WhitelistFile = wl
	allowFirst.Rules[1].WhitelistFile = wl

	deny := newTestEngine(t, denyFirst)
	allow := newTestEngine(t, allowFirst)

	assert.False(t, deny.Decide("10.1.2.3", "evil.com"), "first rule denies")
	assert.True(t, allow.Decide("10.1.2.3", "evil.com"), "first rule allows")
}

func TestDecideDenyRuleWhitelist(t *testing.T) {
	dir := t.TempDir()
	wl := writeList(t, dir, "wl.txt", "*.corp.local\n")

	tests := []struct {
		name          string
		whitelistFile string
		host          string
		want          bool
	}{
		{name: "empty whitelist permits", whitelistFile: "", host: "anywhere.com", want: true},
		{name: "whitelisted host permitted", whitelistFile: wl, host: "app.corp.local", want: true},
		{name: "bare suffix permitted", whitelistFile: wl, host: "corp.local", want: true},
		{name: "other host denied", whitelistFile: wl, host: "evil.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, config.AccessControlConfig{
				DefaultAction: "allow",
				Rules: []config.AccessRule{
					{Networks: []string{"10.0.0.0/8"}, Action: "deny", WhitelistFile: tt.whitelistFile},
				},
			})
			assert.Equal(t, tt.want, engine.Decide("10.1.2.3", tt.host))
		})
	}
}

func TestDecideAllowRuleBlacklist(t *testing.T) {
	dir := t.TempDir()
	bl := writeList(t, dir, "bl.txt", "*.blocked.com\nads.example.com\n")

	tests := []struct {
		name          string
		blacklistFile string
		host          string
		want          bool
	}{
		{name: "no blacklist permits", blacklistFile: "", host: "anywhere.com", want: true},
		{name: "blacklisted host denied", blacklistFile: bl, host: "cdn.blocked.com", want: false},
		{name: "exact blacklisted host denied", blacklistFile: bl, host: "ads.example.com", want: false},
		{name: "other host permitted", blacklistFile: bl, host: "news.example.com", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, config.AccessControlConfig{
				DefaultAction: "deny",
				Rules: []config.AccessRule{
					{Networks: []string{"192.168.0.0/16"}, Action: "allow", BlacklistFile: tt.blacklistFile},
				},
			})
			assert.Equal(t, tt.want, engine.Decide("192.168.1.50", tt.host))
		})
	}
}

func TestDecideDefaultAction(t *testing.T) {
	tests := []struct {
		name          string
		defaultAction string
		want          bool
	}{
		{name: "default deny", defaultAction: "deny", want: false},
		{name: "default allow", defaultAction: "allow", want: true},
		{name: "default allow case-insensitive", defaultAction: "ALLOW", want: true},
		{name: "unknown default behaves as deny", defaultAction: "block", want: false},
		{name: "empty default behaves as deny", defaultAction: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, config.AccessControlConfig{
				DefaultAction: tt.defaultAction,
				Rules: []config.AccessRule{
					{Networks: []string{"172.16.0.0/12"}, Action: "deny"},
				},
			})
			// 10.x is outside every rule network.
			assert.Equal(t, tt.want, engine.Decide("10.1.2.3", "example.com"))
		})
	}
}

func TestDecideNoRulesDefaultDeny(t *testing.T) {
	engine := newTestEngine(t, config.AccessControlConfig{DefaultAction: "deny"})
	assert.False(t, engine.Decide("10.1.2.3", "example.com"))
	assert.False(t, engine.Decide("192.168.1.1", "other.com"))
}

func TestDecideSkipsInvalidNetworks(t *testing.T) {
	engine := newTestEngine(t, config.AccessControlConfig{
		DefaultAction: "deny",
		Rules: []config.AccessRule{
			{Networks: []string{"not-a-cidr", "10.0.0.0/8"}, Action: "allow"},
		},
	})

	assert.True(t, engine.Decide("10.1.2.3", "example.com"), "valid network still applies")
	assert.False(t, engine.Decide("192.168.1.1", "example.com"), "invalid entry matches nothing")
}

func TestDecideBareIPNetwork(t *testing.T) {
	engine := newTestEngine(t, config.AccessControlConfig{
		DefaultAction: "deny",
		Rules: []config.AccessRule{
			{Networks: []string{"10.0.0.1"}, Action: "allow"},
		},
	})

	assert.True(t, engine.Decide("10.0.0.1", "example.com"))
	assert.False(t, engine.Decide("10.0.0.2", "example.com"))
}

func TestDecideUnknownRuleAction(t *testing.T) {
	dir := t.TempDir()
	wl := writeList(t, dir, "wl.txt", "safe.example.com\n")

	engine := newTestEngine(t, config.AccessControlConfig{
		DefaultAction: "allow",
		Rules: []config.AccessRule{
			{Networks: []string{"10.0.0.0/8"}, Action: "block", WhitelistFile: wl},
		},
	})

	// Unrecognized actions run the deny branch: the whitelist is the only
	// way through, and later fallback to the default never happens.
	assert.True(t, engine.Decide("10.1.2.3", "safe.example.com"))
	assert.False(t, engine.Decide("10.1.2.3", "evil.com"))
}

func TestDecideInvalidClientIP(t *testing.T) {
	engine := newTestEngine(t, config.AccessControlConfig{
		DefaultAction: "allow",
		Rules: []config.AccessRule{
			{Networks: []string{"0.0.0.0/0"}, Action: "deny"},
		},
	})

	// An unparseable client IP matches no network and falls to the default.
	assert.True(t, engine.Decide("not-an-ip", "example.com"))
}

func TestExplainReportsDecidingRule(t *testing.T) {
	engine := newTestEngine(t, config.AccessControlConfig{
		DefaultAction: "deny",
		Rules: []config.AccessRule{
			{Networks: []string{"172.16.0.0/12"}, Action: "allow"},
			{Networks: []string{"10.0.0.0/8"}, Action: "allow"},
		},
	})

	d := engine.Explain("10.1.2.3", "example.com")
	assert.True(t, d.Permitted)
	assert.Equal(t, 1, d.RuleIndex)
	assert.Equal(t, "allow", d.Action)

	d = engine.Explain("8.8.8.8", "example.com")
	assert.False(t, d.Permitted)
	assert.Equal(t, -1, d.RuleIndex)
	assert.Equal(t, "deny", d.Action)
}

func TestDecideCorpScenario(t *testing.T) {
	dir := t.TempDir()
	wl := writeList(t, dir, "wl.txt", "*.corp.local\n")

	engine := newTestEngine(t, config.AccessControlConfig{
		DefaultAction: "deny",
		Rules: []config.AccessRule{
			{Networks: []string{"10.0.0.0/8"}, Action: "deny", WhitelistFile: wl},
		},
	})

	assert.True(t, engine.Decide("10.1.2.3", "app.corp.local"))
	assert.False(t, engine.Decide("10.1.2.3", "evil.com"))
}

func TestRulesViewCompiledNetworks(t *testing.T) {
	engine := newTestEngine(t, config.AccessControlConfig{
		DefaultAction: "Deny",
		Rules: []config.AccessRule{
			{Networks: []string{"192.168.1.0/24", "bogus", "10.0.0.1"}, Action: "Allow", WhitelistFile: "wl.txt"},
			{Networks: []string{"172.16.0.0/12"}},
		},
	})

	views := engine.Rules()
	require.Len(t, views, 2)

	assert.Equal(t, []string{"192.168.1.0/24", "10.0.0.1/32"}, views[0].Networks, "invalid entry dropped, bare IP widened")
	assert.Equal(t, "allow", views[0].Action)
	assert.Equal(t, "wl.txt", views[0].WhitelistFile)

	assert.Equal(t, "deny", views[1].Action, "missing action compiles as deny")
	assert.Empty(t, views[1].WhitelistFile)

	assert.Equal(t, "deny", engine.DefaultAction())
}

func TestDecideObservesWhitelistEdits(t *testing.T) {
	dir := t.TempDir()
	wl := writeList(t, dir, "wl.txt", "*.corp.local\n")

	engine := newTestEngine(t, config.AccessControlConfig{
		DefaultAction: "deny",
		Rules: []config.AccessRule{
			{Networks: []string{"10.0.0.0/8"}, Action: "deny", WhitelistFile: wl},
		},
	})

	require.False(t, engine.Decide("10.1.2.3", "newhost.example.com"))

	writeList(t, dir, "wl.txt", "*.corp.local\nnewhost.example.com\n")
	assert.True(t, engine.Decide("10.1.2.3", "newhost.example.com"))
}
