// Package all blank-imports every reader, transform and writer plugin so
// a single import registers the full component set with internal/registry
// (spec §4.8). cmd/logger and cmd/loggerctl import this package purely
// for its side effects.
package all

import (
	_ "rvdas.dev/logger/plugins/readers/database"
	_ "rvdas.dev/logger/plugins/readers/file"
	_ "rvdas.dev/logger/plugins/readers/logfile"
	_ "rvdas.dev/logger/plugins/readers/poll"
	_ "rvdas.dev/logger/plugins/readers/serial"
	_ "rvdas.dev/logger/plugins/readers/tcp"
	_ "rvdas.dev/logger/plugins/readers/timeout"
	_ "rvdas.dev/logger/plugins/readers/udp"

	_ "rvdas.dev/logger/plugins/transforms/derived"
	_ "rvdas.dev/logger/plugins/transforms/geofence"
	_ "rvdas.dev/logger/plugins/transforms/parse"
	_ "rvdas.dev/logger/plugins/transforms/prefix"
	_ "rvdas.dev/logger/plugins/transforms/qcfilter"
	_ "rvdas.dev/logger/plugins/transforms/regexfilter"
	_ "rvdas.dev/logger/plugins/transforms/slice"
	_ "rvdas.dev/logger/plugins/transforms/timestamp"
	_ "rvdas.dev/logger/plugins/transforms/xmlaggregator"

	_ "rvdas.dev/logger/plugins/writers/cds"
	_ "rvdas.dev/logger/plugins/writers/database"
	_ "rvdas.dev/logger/plugins/writers/email"
	_ "rvdas.dev/logger/plugins/writers/logfile"
	_ "rvdas.dev/logger/plugins/writers/loggermanager"
	_ "rvdas.dev/logger/plugins/writers/tcp"
	_ "rvdas.dev/logger/plugins/writers/text"
	_ "rvdas.dev/logger/plugins/writers/udp"
)
