package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rvdas.dev/logger/internal/config"
	"rvdas.dev/logger/internal/registry"
)

var validateCmd = &cobra.Command{
	Use:   "validate PATH",
	Short: "Validate a cruise definition or logger config file without starting a manager",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := logrus.New()
		out.SetFormatter(&logrus.TextFormatter{ForceColors: true, DisableTimestamp: true})

		path := args[0]
		cd, err := config.LoadCruiseDefinition(path)
		if err != nil {
			out.WithError(err).Error("failed to parse")
			return err
		}

		if err := cd.Validate(registry.HasReader, registry.HasTransform, registry.HasWriter); err != nil {
			out.WithError(err).Error(path)
			return err
		}

		out.WithFields(logrus.Fields{
			"loggers": len(cd.Loggers),
			"configs": len(cd.Configs),
			"modes":   len(cd.Modes),
		}).Info(path + ": OK")
		return nil
	},
}
