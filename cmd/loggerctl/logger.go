// loggerCmd groups the per-logger inspection and override commands,
// generalizing the teacher's task create/delete/list/status command
// group (cmd/task.go) from "capture tasks" to "named loggers".
package main

import (
	"github.com/spf13/cobra"

	"rvdas.dev/logger/internal/manager"
)

var loggerCmd = &cobra.Command{
	Use:   "logger",
	Short: "Inspect loggers and override their active config",
}

var loggerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every logger name the manager knows about",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := manager.NewClient(commandSocket, rpcTimeout())
		var names []string
		if err := client.Call("GetLoggers", nil, &names); err != nil {
			exitWithError("failed to list loggers", err)
		}
		for _, n := range names {
			cmd.Println(n)
		}
		return nil
	},
}

var loggerConfigsCmd = &cobra.Command{
	Use:   "configs LOGGER",
	Short: "List the config names available to one logger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := manager.NewClient(commandSocket, rpcTimeout())
		var names []string
		if err := client.Call("GetLoggerConfigs", map[string]string{"logger": args[0]}, &names); err != nil {
			exitWithError("failed to list configs", err)
		}
		for _, n := range names {
			cmd.Println(n)
		}
		return nil
	},
}

var loggerActiveCmd = &cobra.Command{
	Use:   "active LOGGER",
	Short: "Show the config name currently active for one logger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := manager.NewClient(commandSocket, rpcTimeout())
		var name string
		if err := client.Call("GetActiveLoggerConfig", map[string]string{"logger": args[0]}, &name); err != nil {
			exitWithError("failed to get active config", err)
		}
		cmd.Println(name)
		return nil
	},
}

var loggerSetCmd = &cobra.Command{
	Use:   "set LOGGER CONFIG",
	Short: "Override one logger's active config, independent of the active mode",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := manager.NewClient(commandSocket, rpcTimeout())
		params := map[string]string{"logger": args[0], "config": args[1]}
		if err := client.Call("SetActiveLoggerConfig", params, nil); err != nil {
			exitWithError("failed to set logger config", err)
		}
		cmd.Printf("%s now running config %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	loggerCmd.AddCommand(loggerListCmd, loggerConfigsCmd, loggerActiveCmd, loggerSetCmd)
}
