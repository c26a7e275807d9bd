package cmd

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"egress-gate/internal/acl"
	"egress-gate/internal/output"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show the compiled access rules",
	Long: `Display the access rules as the proxy compiles them, in evaluation
order, with the number of patterns each referenced domain list currently
holds.

Examples:
  egress-gate rules            # Show rules as a table
  egress-gate rules --json     # Output as JSON`,
	RunE: runRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)

	rulesCmd.Flags().Bool("json", false, "output as JSON")
}

func runRules(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	lists := acl.NewDomainListStore(log)
	defer lists.Close()
	engine := acl.NewEngine(cfg.AccessControl, lists, log)

	if jsonOutput {
		return outputRulesJSON(engine, lists)
	}
	return outputRulesTable(engine, lists)
}

func outputRulesJSON(engine *acl.Engine, lists *acl.DomainListStore) error {
	type ruleJSON struct {
		Index             int      `json:"index"`
		Networks          []string `json:"networks"`
		Action            string   `json:"action"`
		WhitelistFile     string   `json:"whitelist_file,omitempty"`
		WhitelistPatterns int      `json:"whitelist_patterns,omitempty"`
		BlacklistFile     string   `json:"blacklist_file,omitempty"`
		BlacklistPatterns int      `json:"blacklist_patterns,omitempty"`
	}

	result := struct {
		DefaultAction string     `json:"default_action"`
		Rules         []ruleJSON `json:"rules"`
	}{
		DefaultAction: engine.DefaultAction(),
		Rules:         []ruleJSON{},
	}

	for i, rule := range engine.Rules() {
		result.Rules = append(result.Rules, ruleJSON{
			Index:             i + 1,
			Networks:          rule.Networks,
			Action:            rule.Action,
			WhitelistFile:     rule.WhitelistFile,
			WhitelistPatterns: len(lists.Load(rule.WhitelistFile)),
			BlacklistFile:     rule.BlacklistFile,
			BlacklistPatterns: len(lists.Load(rule.BlacklistFile)),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func outputRulesTable(engine *acl.Engine, lists *acl.DomainListStore) error {
	printer := output.NewPrinter(noColor)
	rules := engine.Rules()

	if len(rules) == 0 {
		printer.Warning("No access rules configured")
		printer.Print("Default action: %s", printer.Bold(engine.DefaultAction()))
		return nil
	}

	printer.Header("Access Rules")

	table := output.NewTable([]string{"#", "NETWORKS", "ACTION", "WHITELIST", "BLACKLIST"})
	for i, rule := range rules {
		table.AddRow([]string{
			strconv.Itoa(i + 1),
			strings.Join(rule.Networks, ", "),
			rule.Action,
			domainListCell(lists, rule.WhitelistFile),
			domainListCell(lists, rule.BlacklistFile),
		})
	}
	table.Render()

	printer.Print("")
	printer.Print("Default action: %s", printer.Bold(engine.DefaultAction()))
	return nil
}

// domainListCell renders a domain-list reference with the number of patterns
// it currently loads. A zero count flags a missing or empty file.
func domainListCell(lists *acl.DomainListStore, path string) string {
	if path == "" {
		return "-"
	}
	return path + " (" + strconv.Itoa(len(lists.Load(path))) + ")"
}
