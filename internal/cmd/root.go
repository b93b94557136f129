package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root cobra command with all subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ptybroker",
		Short: "Terminal runtime and automation broker",
		Long: `ptybroker runs a child shell in a pseudo-terminal and exposes it to
remote automation clients through an authenticated TCP broker: create
sessions and panes, subscribe to their output, and inject input, all
over a small line-oriented protocol.`,
	}

	rootCmd.AddCommand(
		newBrokerCmd(),
		newRunCmd(),
		newVersionCmd(),
	)

	return rootCmd
}
