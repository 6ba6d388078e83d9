package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

var (
	greenCheck = green("✓")
	redCross   = red("✗")
)

// BeQuietError tells Execute the failure was already reported to the
// user; no extra error line is wanted.
type BeQuietError struct{}

func (BeQuietError) Error() string { return "" }

func logError(err error, correlation, msg string) error {
	if correlation != "" {
		log.Error().Msgf("%s %s (correlation ID: %s)", redCross, msg, correlation)
	} else {
		log.Error().Msgf("%s %s", redCross, msg)
	}
	log.Error().Msgf("error: %v", err)
	return BeQuietError{}
}

func logSuccess(format string, args ...any) {
	log.Info().Msgf("%s %s", greenCheck, fmt.Sprintf(format, args...))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// readTokenArg resolves a token positional: "-" means read from stdin.
func readTokenArg(arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	log.Debug().Msg("Reading token from stdin")
	data, err := os.ReadFile("/dev/stdin")
	if err != nil {
		return "", fmt.Errorf("failed to read token from stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
