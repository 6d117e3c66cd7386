// ABOUTME: Entry point for the MCP server runtime
// ABOUTME: Cobra commands to serve, probe health, list tools, and print the version

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/mcp-runtime/internal/config"
	"github.com/2389/mcp-runtime/internal/gateway"
	"github.com/2389/mcp-runtime/internal/logging"
)

// version is set at build time.
var version = "dev"

const banner = `
  _ __ ___   ___ _ __        ___  ___ _ ____   _____ _ __
 | '_ ' _ \ / __| '_ \ _____/ __|/ _ \ '__\ \ / / _ \ '__|
 | | | | | | (__| |_) |_____\__ \  __/ |   \ V /  __/ |
 |_| |_| |_|\___| .__/      |___/\___|_|    \_/ \___|_|
                |_|
`

// app carries the process dependencies so commands can run against fakes in tests.
type app struct {
	configPath string
	getenv     func(string) string
	stdout     io.Writer
	stderr     io.Writer
}

func main() {
	a := &app{getenv: os.Getenv, stdout: os.Stdout, stderr: os.Stderr}
	if err := a.rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mcp-server",
		Short:        "MCP tool server with bearer-token authentication",
		SilenceUsage: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"path to a YAML or TOML config file (default $MCP_CONFIG)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the MCP server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return a.runServe(ctx)
			},
		},
		&cobra.Command{
			Use:   "health",
			Short: "Check the health endpoint of a running server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runHealth(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "tools",
			Short: "List the tools this server exposes",
			RunE: func(*cobra.Command, []string) error {
				return a.runTools()
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(*cobra.Command, []string) {
				fmt.Fprintln(a.stdout, version)
			},
		},
	)
	return root
}

// resolveConfigPath returns the --config flag, falling back to $MCP_CONFIG.
func (a *app) resolveConfigPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	return a.getenv("MCP_CONFIG")
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.resolveConfigPath(), a.getenv)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func (a *app) runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Fprint(a.stdout, banner)

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(a.stdout, "    version: %s\n\n", version)

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, a.stderr)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	line := func(label, value string) {
		green.Fprint(a.stdout, "    ▶ ")
		fmt.Fprintf(a.stdout, "%-13s%s\n", label+":", value)
	}

	if path := a.resolveConfigPath(); path != "" {
		line("Config", path)
	}
	line("Server", cfg.Server.Name+" "+cfg.Server.Version)
	line("HTTP", ":"+cfg.Server.Port)
	line("Environment", cfg.Server.Environment)
	if cfg.AuthDisabled() {
		green.Fprint(a.stdout, "    ▶ ")
		fmt.Fprintf(a.stdout, "%-13s", "Auth:")
		yellow.Fprintln(a.stdout, "DISABLED (development bypass)")
	} else {
		line("JWKS", cfg.Auth.JWKSURL)
		line("Issuer", cfg.Auth.Issuer)
	}
	fmt.Fprintln(a.stdout)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func (a *app) runHealth(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%s/health", cfg.Server.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Fprintln(a.stdout, "healthy")
	return nil
}

func (a *app) runTools() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	gw, err := gateway.New(cfg, logging.New("error", "text", io.Discard))
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	bold := color.New(color.Bold)
	for _, d := range gw.Registry().List() {
		bold.Fprintf(a.stdout, "%-12s", d.Name)
		fmt.Fprintf(a.stdout, " %s\n", d.Description)
	}
	return nil
}
