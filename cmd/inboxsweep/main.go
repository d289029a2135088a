package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"inboxsweep/internal/config"
	"inboxsweep/internal/logger"
)

const usage = `Usage: inboxsweep [-config path] [-log-level level] <command> [args]

Commands:
  scan          scan the mailbox and list newsletter candidates
  unsubscribe   scan, then unsubscribe from the given ids or tier
  manual-link   print (or open) the unsubscribe link of one candidate
  whitelist     add|remove|list|clear allow-listed senders
  imap-password store the IMAP password in the system keyring
  tui           interactive candidate browser
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := flag.String("config", "", "config file (default ~/.config/inboxsweep/config.yaml)")
	logLevel := flag.String("log-level", "", "override log_level")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, log: log, out: os.Stdout}
	if err := a.run(ctx, args[0], args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Debug("command failed", zap.String("command", args[0]), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
