package main

import (
	"time"

	"github.com/spf13/cobra"

	"rvdas.dev/logger/internal/manager"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Tell a running logger manager to quit",
	Long: `Send the Quit command to a running loggerctl daemon over its
command socket. The daemon stops every running logger and its
reconciliation loop; the daemon process itself keeps running, with its
command socket open, until it receives SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := manager.NewClient(commandSocket, rpcTimeout())
		if err := client.Ping(); err != nil {
			exitWithError("daemon is not running or socket is inaccessible", err)
		}
		if err := client.Call("Quit", nil, nil); err != nil {
			exitWithError("failed to send quit command", err)
		}
		cmd.Println("quit signal sent")
		return nil
	},
}

func rpcTimeout() time.Duration {
	return time.Duration(rpcTimeoutSeconds * float64(time.Second))
}
