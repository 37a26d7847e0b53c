// Package derived registers the derived-value transform class.
package derived

import (
	"rvdas.dev/logger/internal/registry"
	core "rvdas.dev/logger/internal/transform/derived"
)

func init() {
	registry.RegisterTransform("derived", core.New)
}
