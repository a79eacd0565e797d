// Package logging wires the package-level zerolog logger every core
// component logs through, grounded on web3guy0-polybot's
// github.com/rs/zerolog/log idiom. Setting up sinks/writers is outer-layer
// (§1 non-goal); this package only configures the global logger's level,
// timestamp format and optional console output, which callers may invoke
// once at process start.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure sets the global zerolog level and switches to console-friendly
// output when pretty is true (suited to local demo runs; structured JSON is
// preferable in production and is zerolog's default).
func Configure(level string, pretty bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
