package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// viper keys, bound to flags in cmd
const (
	LevelKey   = "log.level"
	FormatKey  = "log.format"
	NoColorKey = "log.no_color"
)

// Options override the viper-provided logging settings.
type Options struct {
	Level   string
	Format  string
	NoColor bool
}

// InitDefault sets up a console logger before flags are parsed,
// so that early failures (flag/config errors) are still readable.
func InitDefault() {
	log.Logger = consoleLogger(false).Level(zerolog.InfoLevel)
}

// Init configures the global logger from the given options,
// falling back to viper-bound flags/env when opts is nil.
func Init(opts *Options) {
	if opts == nil {
		opts = &Options{
			Level:   viper.GetString(LevelKey),
			Format:  viper.GetString(FormatKey),
			NoColor: viper.GetBool(NoColorKey),
		}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	switch opts.Format {
	case "json":
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	default:
		logger = consoleLogger(opts.NoColor)
	}

	log.Logger = logger.Level(level)
}

func consoleLogger(noColor bool) zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	}
	return zerolog.New(writer).With().Timestamp().Logger()
}
