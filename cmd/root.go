package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the milecal gateway.
var rootCmd = &cobra.Command{
	Use:   "milecal",
	Short: "Authorization and identity gateway for the milestone calendar",
	Long: `milecal fronts the milestone calendar application: it authenticates
browsers against Google, links GitHub for repository access, derives a
role from the signed-in email, and enforces a default-deny policy on
every request before anything downstream runs.`,
	// SilenceUsage keeps handled errors from being followed by the
	// full usage text.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from main
// with the build-time version stamp.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command. Called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "milecal version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
