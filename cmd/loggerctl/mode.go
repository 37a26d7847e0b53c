package main

import (
	"github.com/spf13/cobra"

	"rvdas.dev/logger/internal/manager"
)

var modeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Inspect or change the manager's active mode",
}

var modeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every mode name in the loaded cruise definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := manager.NewClient(commandSocket, rpcTimeout())
		var modes []string
		if err := client.Call("GetModes", nil, &modes); err != nil {
			exitWithError("failed to list modes", err)
		}
		for _, m := range modes {
			cmd.Println(m)
		}
		return nil
	},
}

var modeGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the currently active mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := manager.NewClient(commandSocket, rpcTimeout())
		var active string
		if err := client.Call("GetActiveMode", nil, &active); err != nil {
			exitWithError("failed to get active mode", err)
		}
		cmd.Println(active)
		return nil
	},
}

var modeSetCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Set the active mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := manager.NewClient(commandSocket, rpcTimeout())
		if err := client.Call("SetActiveMode", map[string]string{"mode": args[0]}, nil); err != nil {
			exitWithError("failed to set active mode", err)
		}
		cmd.Printf("active mode set to %s\n", args[0])
		return nil
	},
}

func init() {
	modeCmd.AddCommand(modeListCmd, modeGetCmd, modeSetCmd)
}
