package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/mcpguard/toolgate/internal/api"
	"github.com/mcpguard/toolgate/internal/auth"
	"github.com/mcpguard/toolgate/internal/config"
	"github.com/mcpguard/toolgate/internal/detection"
	"github.com/mcpguard/toolgate/internal/server"
	"github.com/mcpguard/toolgate/internal/tools"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logger = xlog.NewPackageLogger("github.com/mcpguard/toolgate", "cmd")

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "toolgate",
		Short:        "toolgate - an API key protected MCP tool server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, cmd)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, toml or json)")
	flags.String("host", "", "interface to listen on")
	flags.Int("port", 11435, "port to listen on")
	flags.String("api-key", "", "API key required on protected endpoints")
	flags.String("log-level", "info", "log level: trace, debug, info, notice, warning, error, critical")
	flags.String("log-format", "text", "log format: text or json")
	flags.Duration("fetch-timeout", 0, "timeout of outbound requests made by tools, 0 for none")
	flags.Int64("max-body-bytes", 0, "largest page body scrape_webpage reads, 0 for no limit")
	flags.Bool("detection", false, "reject tool calls whose arguments contain secrets")
	flags.String("detection-config", "", "gitleaks rules file, bundled rules when empty")

	for key, flag := range map[string]string{
		"server.host":          "host",
		"server.port":          "port",
		"api_key":              "api-key",
		"log.level":            "log-level",
		"log.format":           "log-format",
		"fetch.timeout":        "fetch-timeout",
		"fetch.max_body_bytes": "max-body-bytes",
		"detection.enabled":    "detection",
		"detection.config":     "detection-config",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(newToolsCmd())
	return rootCmd
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool definitions served over MCP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tools.New().Definitions())
		},
	}
}

func loadConfig(v *viper.Viper, cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid configuration")
	}
	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg config.Log) error {
	levels := map[string]xlog.LogLevel{
		"trace":    xlog.TRACE,
		"debug":    xlog.DEBUG,
		"info":     xlog.INFO,
		"notice":   xlog.NOTICE,
		"warning":  xlog.WARNING,
		"warn":     xlog.WARNING,
		"error":    xlog.ERROR,
		"critical": xlog.CRITICAL,
	}
	level, ok := levels[cfg.Level]
	if !ok {
		return errors.Newf("unsupported log level: %q", cfg.Level)
	}

	if cfg.Format == "json" {
		xlog.SetFormatter(xlog.NewJSONFormatter(os.Stderr))
	} else {
		xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	}
	xlog.SetGlobalLogLevel(level)
	return nil
}

func newHandler(cfg *config.Config) (*server.Server, error) {
	toolbox := tools.New(
		tools.WithTimeout(cfg.Fetch.Timeout),
		tools.WithMaxBodyBytes(cfg.Fetch.MaxBodyBytes),
	)

	var opts []server.Option
	if cfg.Detection.Enabled {
		d, err := detection.NewEngine(cfg.Detection.Rules)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create detection engine")
		}
		opts = append(opts, server.WithDetector(d))
	}
	return server.New(toolbox, opts...), nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	handler, err := newHandler(cfg)
	if err != nil {
		return err
	}

	h := api.New(auth.New(cfg.APIKey), handler)

	// Create HTTP server
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.KV(xlog.INFO,
			"status", "starting",
			"agent", cfg.AgentID,
			"addr", srv.Addr,
			"detection", cfg.Detection.Enabled,
		)
		serverErrors <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrors:
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
		logger.KV(xlog.INFO, "status", "shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// open event streams do not end on their own
		_ = srv.Close()
	}
	logger.KV(xlog.INFO, "status", "stopped")
	return nil
}
