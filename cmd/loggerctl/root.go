// Command loggerctl runs the logger manager (spec §4.4): the
// reconciliation daemon that starts/stops/restarts per-logger pipelines
// to match a cruise definition's active mode, plus the CLI used to drive
// it (spec §6 "CLI: logger manager"). Structured the way the teacher's
// cmd/root.go + cmd/execute.go split global flags from subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	databaseBackend    string
	configPath         string
	initialMode        string
	noConsole          bool
	stderrFilePattern  string
	dataServerWS       string
	startDataServer    bool
	commandSocket      string
	rpcTimeoutSeconds  float64
)

var rootCmd = &cobra.Command{
	Use:   "loggerctl",
	Short: "Run or control the shipboard data-acquisition logger manager",
	Long: `loggerctl runs the logger manager daemon, which reconciles a
cruise definition's active mode against a set of running per-logger
pipelines, and also acts as a client for controlling an already-running
manager over its Unix domain command socket.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commandSocket, "socket", "/var/run/loggerctl.sock",
		"command/control Unix domain socket path")
	rootCmd.PersistentFlags().Float64Var(&rpcTimeoutSeconds, "rpc_timeout", 10,
		"seconds to wait for a command socket response")

	startCmd.Flags().StringVar(&daemonConfigPath, "daemon_config", "",
		"viper-loaded ambient daemon config file (node identity, listen addresses, log level); explicit flags below still win")
	startCmd.Flags().StringVar(&databaseBackend, "database", "memory",
		"snapshot store backend: memory|sqlite|django")
	startCmd.Flags().StringVar(&configPath, "config", "",
		"cruise/logger definition file to load at start")
	startCmd.Flags().StringVar(&initialMode, "mode", "",
		"initial active mode (defaults to the definition's default_mode)")
	startCmd.Flags().BoolVar(&noConsole, "no-console", false,
		"suppress the interactive status console")
	startCmd.Flags().StringVar(&stderrFilePattern, "stderr_file_pattern", "/var/log/logger/{logger}.stderr",
		"captured child-process stderr file pattern; must contain {logger} (only this check is applied: captured stderr is published as status lines, not written to files)")
	startCmd.Flags().StringVar(&dataServerWS, "data_server_websocket", ":8766",
		"[host]:port the embedded Cached Data Server listens on")
	startCmd.Flags().BoolVar(&startDataServer, "start_data_server", false,
		"embed a Cached Data Server in this process")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(loggerCmd)
	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "loggerctl: %v\n", err)
		os.Exit(1)
	}
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "loggerctl: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "loggerctl: %s\n", msg)
	}
	os.Exit(1)
}
