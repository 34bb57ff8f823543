package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. Local environments get a console
// writer, everything else JSON lines tagged with service and env.
func Init(level, appName, env string) error {
	return initWithWriter(os.Stdout, level, appName, env)
}

func initWithWriter(out io.Writer, level, appName, env string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if env == "local" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "02-01-2006 15:04:05.000"}
	}
	log.Logger = zerolog.New(out).With().
		Timestamp().
		Str("service", appName).
		Str("env", env).
		Logger()
	return nil
}

func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "INFO", "":
		return zerolog.InfoLevel, nil
	case "WARN":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "DISABLED":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("incorrect log level %s", level)
	}
}
