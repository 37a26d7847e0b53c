// Package geofence registers the geofence/QC control transform class.
package geofence

import (
	"rvdas.dev/logger/internal/registry"
	core "rvdas.dev/logger/internal/transform/geofence"
)

func init() {
	registry.RegisterTransform("geofence", core.New)
}
