// Package loggermanager registers the loggermanager writer class.
package loggermanager

import (
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
	core "rvdas.dev/logger/internal/writer/loggermanager"
)

func init() {
	registry.RegisterWriter("loggermanager", func(kwargs map[string]any) (stage.Writer, error) {
		return core.New(kwargs)
	})
}
