// Package logfile implements LogfileReader: reads lines previously
// written by LogfileWriter, with the same filename/glob handling as
// plugins/readers/file (spec §6, companion reader to
// plugins/writers/logfile). The glob is matched once, when the reader is
// built; files created later, such as newly rotated ones, are not read.
package logfile

import (
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
	"rvdas.dev/logger/plugins/readers/file"
)

func init() {
	registry.RegisterReader("logfile", New)
}

// New delegates entirely to plugins/readers/file; a logfile is just a
// file with a predictable, rotation-friendly name.
func New(kwargs map[string]any) (stage.Reader, error) {
	return file.New(kwargs)
}
