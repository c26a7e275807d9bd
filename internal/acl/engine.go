package acl

import (
	"log/slog"
	"net"
	"strings"

	"egress-gate/internal/config"
	"egress-gate/internal/metrics"
)

// Engine evaluates access-control rules: first rule whose network list
// contains the client IP decides, later rules are never consulted. Rules are
// compiled once at startup; the domain lists they reference are observed
// fresh on every decision through the DomainListStore.
type Engine struct {
	rules         []compiledRule
	defaultAction string
	lists         *DomainListStore
	log           *slog.Logger
}

type compiledRule struct {
	action        string
	networks      []*net.IPNet
	whitelistFile string
	blacklistFile string
}

// Decision is the outcome of one rule evaluation, with the rule that decided
// it (RuleIndex -1 means the default action applied).
type Decision struct {
	Permitted bool
	RuleIndex int
	Action    string
}

// RuleView is a printable summary of one compiled rule.
type RuleView struct {
	Networks      []string
	Action        string
	WhitelistFile string
	BlacklistFile string
}

// NewEngine compiles the configured rules. Network entries that are neither
// a CIDR nor a bare IP address are skipped with a warning.
func NewEngine(cfg config.AccessControlConfig, lists *DomainListStore, log *slog.Logger) *Engine {
	e := &Engine{
		defaultAction: strings.ToLower(cfg.DefaultAction),
		lists:         lists,
		log:           log,
	}

	for i, rule := range cfg.Rules {
		compiled := compiledRule{
			action:        strings.ToLower(rule.Action),
			whitelistFile: rule.WhitelistFile,
			blacklistFile: rule.BlacklistFile,
		}
		if compiled.action == "" {
			compiled.action = "deny"
		}
		for _, network := range rule.Networks {
			ipnet, err := parseNetwork(network)
			if err != nil {
				log.Warn("skipping invalid network in access rule",
					"rule", i, "network", network, "error", err)
				continue
			}
			compiled.networks = append(compiled.networks, ipnet)
		}
		e.rules = append(e.rules, compiled)
	}
	return e
}

// Rules returns the compiled rules in evaluation order. Network entries that
// failed to parse at startup are absent.
func (e *Engine) Rules() []RuleView {
	views := make([]RuleView, 0, len(e.rules))
	for _, rule := range e.rules {
		view := RuleView{
			Action:        rule.action,
			WhitelistFile: rule.whitelistFile,
			BlacklistFile: rule.blacklistFile,
		}
		for _, ipnet := range rule.networks {
			view.Networks = append(view.Networks, ipnet.String())
		}
		views = append(views, view)
	}
	return views
}

// DefaultAction returns the fallback action applied when no rule matches.
func (e *Engine) DefaultAction() string {
	return e.defaultAction
}

// Decide returns whether clientIP may reach destinationHost and records the
// decision metric.
func (e *Engine) Decide(clientIP, destinationHost string) bool {
	permitted := e.Explain(clientIP, destinationHost).Permitted
	metrics.RecordDecision(permitted)
	return permitted
}

// Explain evaluates the rules and reports which one decided.
func (e *Engine) Explain(clientIP, destinationHost string) Decision {
	ip := net.ParseIP(clientIP)

	for i, rule := range e.rules {
		if ip == nil || !containsIP(rule.networks, ip) {
			continue
		}

		whitelist := e.lists.Load(rule.whitelistFile)
		blacklist := e.lists.Load(rule.blacklistFile)

		if rule.action == "allow" {
			if len(blacklist) > 0 && MatchHostname(destinationHost, blacklist) {
				return Decision{Permitted: false, RuleIndex: i, Action: rule.action}
			}
			return Decision{Permitted: true, RuleIndex: i, Action: rule.action}
		}

		// "deny" and anything unrecognized: a whitelist, when present, is
		// the only way through.
		if len(whitelist) > 0 {
			return Decision{
				Permitted: MatchHostname(destinationHost, whitelist),
				RuleIndex: i,
				Action:    rule.action,
			}
		}
		return Decision{Permitted: true, RuleIndex: i, Action: rule.action}
	}

	return Decision{Permitted: e.defaultAction == "allow", RuleIndex: -1, Action: e.defaultAction}
}

// parseNetwork accepts CIDR notation or a bare IP address (treated as a
// single-host network).
func parseNetwork(s string) (*net.IPNet, error) {
	_, ipnet, err := net.ParseCIDR(s)
	if err == nil {
		return ipnet, nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, err
	}
	bits := 8 * net.IPv6len
	if ip.To4() != nil {
		bits = 8 * net.IPv4len
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

func containsIP(networks []*net.IPNet, ip net.IP) bool {
	for _, ipnet := range networks {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}
