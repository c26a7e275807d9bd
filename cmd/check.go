package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/spf13/cobra"

	"egress-gate/internal/acl"
	"egress-gate/internal/output"
)

var checkCmd = &cobra.Command{
	Use:   "check CLIENT_IP HOST",
	Short: "Evaluate the access rules for a client and destination",
	Long: `Evaluate the configured access rules as the proxy would for a request
from CLIENT_IP to HOST, and report which rule decided.

Exits 0 when access would be permitted and 1 when it would be denied.

Examples:
  egress-gate check 192.168.1.10 api.example.com
  egress-gate check 10.0.0.5 blocked.example.org`,
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	clientIP, host := args[0], args[1]
	if net.ParseIP(clientIP) == nil {
		return fmt.Errorf("invalid client IP: %q", clientIP)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	lists := acl.NewDomainListStore(log)
	defer lists.Close()
	engine := acl.NewEngine(cfg.AccessControl, lists, log)

	decision := engine.Explain(clientIP, host)

	printer := output.NewPrinter(noColor)
	verdict := printer.Deny("DENY")
	if decision.Permitted {
		verdict = printer.Permit("PERMIT")
	}

	source := fmt.Sprintf("default action %q", cfg.AccessControl.DefaultAction)
	if decision.RuleIndex >= 0 {
		source = fmt.Sprintf("rule %d (action %q)", decision.RuleIndex+1, decision.Action)
	}
	printer.Print("%s  %s -> %s  (%s)", verdict, clientIP, host, source)

	if !decision.Permitted {
		os.Exit(1)
	}
	return nil
}
