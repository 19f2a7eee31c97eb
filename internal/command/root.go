package command

import "github.com/spf13/cobra"

// NewServerRootCmd builds the root command for sshxd, the session
// coordinator binary.
func NewServerRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sshxd",
		Short: "sshx session coordinator",
	}

	cmd.AddCommand(newServeCmd())

	return cmd
}

// NewHostRootCmd builds the root command for sshx, the host binary that
// shares a terminal.
func NewHostRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sshx",
		Short: "share a terminal session",
	}

	cmd.AddCommand(newRunCmd())

	return cmd
}
