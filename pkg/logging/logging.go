// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// DebugEnv turns on debug logging when set to a true value.
const DebugEnv = "QUIESCE_DEBUG"

// Options configure Init.
type Options struct {
	Debug bool
	// Level overrides Debug when set, e.g. "trace" or "warn".
	Level string
	// Output defaults to stderr.
	Output io.Writer
}

// Init configures the standard logrus logger. Colours are enabled only when
// the output is a terminal.
func Init(opts Options) error {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := logrus.InfoLevel
	if opts.Debug || envTrue(os.Getenv(DebugEnv)) {
		level = logrus.DebugLevel
	}
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return err
		}
		level = parsed
	}

	logrus.SetOutput(out)
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:      isTerminal(out),
		DisableColors:    !isTerminal(out),
		FullTimestamp:    true,
		TimestampFormat:  "15:04:05.000",
		QuoteEmptyFields: true,
	})
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func envTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
