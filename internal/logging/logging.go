// Package logging constructs the loggers used across chairside.
//
// Interactive commands log to stderr. The daemon additionally logs to a
// rotating file (lumberjack) so a clinic machine that stays offline for days
// does not fill its disk with sync retry noise.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options control logger construction.
type Options struct {
	// Prefix is the bracketed component prefix, e.g. "[daemon] ".
	Prefix string

	// File enables rotating file output when non-empty.
	File string

	// MaxSizeMB caps the log file before rotation.
	MaxSizeMB int

	// MaxBackups is how many rotated files to keep.
	MaxBackups int

	// Quiet suppresses stderr output (file-only logging).
	Quiet bool
}

// New builds a logger per opts. With no file and Quiet false this is just a
// standard stderr logger.
func New(opts Options) *log.Logger {
	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, os.Stderr)
	}
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		})
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}
	return log.New(out, opts.Prefix, log.LstdFlags)
}
