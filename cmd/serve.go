package cmd

import (
	"context"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"egress-gate/internal/acl"
	"egress-gate/internal/dns"
	"egress-gate/internal/logger"
	"egress-gate/internal/ops"
	"egress-gate/internal/proxy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy server",
	Long: `Start the proxy listener and, when enabled, the monitoring HTTP server.

The process runs until it receives SIGINT or SIGTERM, then drains in-flight
connections for up to server.shutdown_timeout seconds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	log, logCloser, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	log.Info("starting egress-gate",
		"version", version,
		"listen", cfg.ListenAddr(),
		"rules", len(cfg.AccessControl.Rules),
		"special_hosts", len(cfg.SpecialHosts),
	)

	lists := acl.NewDomainListStore(logger.WithComponent(log, "acl"))
	defer lists.Close()
	engine := acl.NewEngine(cfg.AccessControl, lists, logger.WithComponent(log, "acl"))

	var dialer proxy.Dialer = &net.Dialer{}
	if cfg.DNS.Enabled() {
		resolver := dns.NewResolver(cfg.DNS, logger.WithComponent(log, "dns"))
		dialer = dns.NewDialer(resolver)
		log.Info("using custom DNS resolver", "servers", cfg.DNS.Servers)
	}

	access := logger.NewAccessLogger(log, cfg.LogFields)
	handler := proxy.NewHandler(cfg, engine, dialer, access)
	server := proxy.NewServer(cfg, handler, log)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down proxy server")
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.DrainTimeout())
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			log.Warn("shutdown timed out, dropping remaining connections", "error", err)
		}
		return nil
	})

	if cfg.Monitoring.Enabled {
		opsServer := ops.NewServer(cfg.Monitoring, version, server.Ready, logger.WithComponent(log, "ops"))
		g.Go(func() error {
			return opsServer.Start(gCtx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		return err
	}

	log.Info("proxy server stopped")
	return nil
}
