package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/financekit/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   base URL of the receipt service
//	-d string   data directory for the local databases
//	-i int      online check interval (seconds)
//	-u int      undo window for deletions (seconds)
//
// Only these flags are considered; other arguments are filtered out with
// flagx.FilterArgs so components can share one argument list.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-i", "-u"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerBaseURL, "a", cfg.ServerBaseURL, "base URL of the receipt service")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	undoWindow := fs.Int("u", int(cfg.UndoWindow.Seconds()), "undo window for deletions (in seconds)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.UndoWindow = time.Duration(*undoWindow) * time.Second
	return nil
}
