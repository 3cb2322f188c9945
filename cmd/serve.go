package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"milecal/internal/config"
	"milecal/internal/server"
	"milecal/pkg/logging"
)

// serveConfigPath points at the YAML config file. Empty means defaults
// plus environment overrides.
var serveConfigPath string

// serveDebug enables verbose logging across the gateway.
var serveDebug bool

// servePort overrides the configured listen port when non-zero.
var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Starts the milecal gateway: loads configuration and the policy rule
file, connects the session store, and serves the authenticated HTTP
surface until interrupted.

Provider credentials come from the config file or from the
MILECAL_GOOGLE_CLIENT_ID, MILECAL_GOOGLE_CLIENT_SECRET,
MILECAL_GITHUB_CLIENT_ID, and MILECAL_GITHUB_CLIENT_SECRET environment
variables.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	cfg, err := config.LoadConfig(serveConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to assemble gateway: %w", err)
	}

	return srv.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to the YAML configuration file")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Override the configured listen port")
}
