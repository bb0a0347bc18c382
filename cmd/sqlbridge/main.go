// Command sqlbridge compiles relational statements for vector and graph
// stores and runs them.
package main

import (
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/roach88/sqlbridge/internal/cli"
)

func main() {
	// Commands reconfigure logging once their config is loaded.
	_ = cli.ConfigureLogging(os.Stderr, "info", true, false)

	if err := cli.NewRootCommand().Execute(); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			// Usage and flag errors are not reported by the commands themselves.
			log.Error().Err(err).Msg("command failed")
		}
		os.Exit(cli.GetExitCode(err))
	}
}
