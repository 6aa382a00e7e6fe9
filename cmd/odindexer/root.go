package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for odindexer.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "odindexer",
		Short: "Index open directories and file hosts",
		Long: `odindexer crawls open directories and reports every file they contain.

Supported sources are HTML directory listings, FTP servers, Google Drive
folders, Go2Index sites and the Pixeldrain, Mediafire and Blitzfiles file
hosts. Crawls interrupted with Ctrl+C are saved to a snapshot; use
'odindexer resume' to continue them.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewIndexCmd())
	cmd.AddCommand(NewResumeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
