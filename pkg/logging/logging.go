// Package logging routes log output to stdout or to a rotating log file.
package logging

import (
	"io"
	"log"
	"os"

	"github.com/natefinch/lumberjack"

	"github.com/bsauty/sc-mri-modality-detection/pkg/config"
)

// Setup returns a logger configured from the output section of cfg, and a
// closer that releases the log file. Without a log file, messages go to stdout.
func Setup(cfg *config.Config) (*log.Logger, io.Closer) {
	var out io.WriteCloser = nopCloser{os.Stdout}
	if cfg.Output.LogFile != "" {
		out = &lumberjack.Logger{
			Filename: cfg.Output.LogFile,
			MaxSize:  cfg.Output.MaxLogSize, // megabytes
			MaxAge:   cfg.Output.MaxLogAge,  // days
		}
	}

	return log.New(out, "", log.LstdFlags), out
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
