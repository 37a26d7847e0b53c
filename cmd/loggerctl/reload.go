package main

import (
	"github.com/spf13/cobra"

	"rvdas.dev/logger/internal/manager"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the manager's cruise definition from disk",
	Long: `Send the ReloadConfiguration command to a running loggerctl
daemon: it re-reads the definition file it was started with (or last
loaded via LoadConfiguration) and reconciles against it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := manager.NewClient(commandSocket, rpcTimeout())
		if err := client.Ping(); err != nil {
			exitWithError("daemon is not running or socket is inaccessible", err)
		}
		if err := client.Call("ReloadConfiguration", nil, nil); err != nil {
			exitWithError("failed to reload configuration", err)
		}
		cmd.Println("configuration reloaded")
		return nil
	},
}
