// Status and human-facing diagnostic output use logrus directly rather
// than slog, mirroring how the teacher's internal/log layers a colorized
// text formatter in front of logrus for anything meant to be read by a
// person at a terminal rather than shipped to a log sink.
package main

import (
	"encoding/json"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rvdas.dev/logger/internal/manager"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of every logger the manager is tracking",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := manager.NewClient(commandSocket, rpcTimeout())
		if err := client.Ping(); err != nil {
			exitWithError("daemon is not running or socket is inaccessible", err)
		}

		var states map[string]manager.LoggerState
		if err := client.Call("GetStatus", nil, &states); err != nil {
			exitWithError("failed to query status", err)
		}

		if statusJSON {
			out, err := json.MarshalIndent(states, "", "  ")
			if err != nil {
				exitWithError("failed to format status", err)
			}
			cmd.Println(string(out))
			return nil
		}

		printStatusTable(states)
		return nil
	},
}

func printStatusTable(states map[string]manager.LoggerState) {
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	out := logrus.New()
	out.SetFormatter(&logrus.TextFormatter{ForceColors: true, DisableTimestamp: true})

	if len(names) == 0 {
		out.Info("no loggers registered")
		return
	}

	for _, name := range names {
		s := states[name]
		entry := out.WithFields(logrus.Fields{
			"config":   s.ActiveConfig,
			"failures": s.Failures,
		})
		if s.PID != 0 {
			entry = entry.WithField("pid", s.PID)
		}

		switch s.Status {
		case manager.StatusFatal:
			entry.WithField("error", s.LastError).Error(name)
		case manager.StatusRunning:
			entry.Info(name)
		case manager.StatusStopped, manager.StatusExited:
			entry.Warn(name)
		default:
			entry.WithField("error", s.LastError).Warn(name)
		}
	}
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print raw JSON instead of a colorized table")
}
