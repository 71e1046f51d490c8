// Package cli holds the taskboard commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/btouchard/taskboard/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Version    string
}

// NewRootCommand creates the root command.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:           "taskboard",
		Short:         "Taskboard - task tracking with live notifications",
		Long:          "A task tracker where managers assign work, users report progress, and everyone involved is notified over WebSocket.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))
	cmd.AddCommand(NewCreateSuperuserCommand(opts))
	cmd.AddCommand(NewLoadUsersCommand(opts))

	return cmd
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	if o.ConfigPath != "" {
		return config.LoadFromFile(o.ConfigPath)
	}
	return config.Load()
}
