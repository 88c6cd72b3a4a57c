// Package cli implements the pixelpost command surface: run executes one
// publish batch, status reports today's quota usage and recent records.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pixelpost [command] [flags]",
	Short: "pixelpost - automated art publishing pipeline",
	Long: `pixelpost generates candidate artwork, deduplicates it against
everything previously published, derives listing metadata, optionally routes
each candidate through a chat-based human approval step, publishes it, and
records the outcome - all under a daily quota.

Examples:
  # Run today's batch
  pixelpost run --config pixelpost.toml

  # Rehearse without publishing
  pixelpost run --config pixelpost.toml --dry-run

  # Show today's quota usage and recent records
  pixelpost status --config pixelpost.toml`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.Execute()
	if err != nil {
		if errors.Is(err, ErrAlreadyHandled) {
			os.Exit(1)
		}
		errorLabel.Fprintln(os.Stderr, "Error:", err.Error())
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pixelpost version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("pixelpost", Version)
		},
	}
}

// Version is the build version, overridden at link time.
var Version = "dev"
