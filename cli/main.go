package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"detiksync/internal/config"
	"detiksync/internal/storage"
)

func main() {
	command := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "run":
		os.Exit(cmdRun(args))
	case "watch":
		os.Exit(cmdWatch(args))
	case "check-config":
		os.Exit(cmdCheckConfig(args))
	case "ledger":
		os.Exit(cmdLedger(args))
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `detiksync - republish detik videos to Facebook pages

Usage:
  detiksync [run] [flags]        Run one sync pass (default)
  detiksync watch [flags]        Run passes every CHECK_INTERVAL until stopped
  detiksync check-config [flags] Validate parameters and the destinations file
  detiksync ledger [flags]       Show what the ledger has recorded
  detiksync help                 Show this help message

Examples:
  detiksync                                  # One pass with detiksync.json and the environment
  detiksync run --gate --lock                # Only inside operating hours, one instance at a time
  detiksync watch --debug                    # Long running, verbose logs
  detiksync ledger --list                    # Every recorded item

For help on specific command: detiksync <command> -h
`)
}

type commonFlags struct {
	config *string
	debug  *bool
}

func newFlagSet(name, usage string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	c := commonFlags{
		config: fs.String("config", "", "JSON parameter file (default "+config.DefaultFile+" if present)"),
		debug:  fs.Bool("debug", false, "Verbose development logging"),
	}
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: detiksync %s\n\nFlags:\n", usage)
		fs.PrintDefaults()
	}
	return fs, c
}

// setup loads the configuration and the logger shared by the pass commands.
func setup(c commonFlags) (*config.Config, *zap.Logger, bool) {
	logger, err := newLogger(*c.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		return nil, nil, false
	}
	cfg, err := config.Load(*c.config)
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		logger.Sync()
		return nil, nil, false
	}
	return cfg, logger, true
}

func cmdRun(args []string) int {
	fs, common := newFlagSet("run", "run [flags]")
	useGate := fs.Bool("gate", false, "Skip the pass outside GATE_START_HOUR-GATE_END_HOUR WIB")
	useLock := fs.Bool("lock", false, "Hold an advisory lock next to the ledger during the pass")
	fs.Parse(args)

	cfg, logger, ok := setup(common)
	if !ok {
		return 1
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := a.pass(ctx, *useGate, *useLock); err != nil {
		if errors.Is(err, errLocked) {
			logger.Warn("another run is in progress, skipping", zap.String("ledger", cfg.DataFile))
			return 0
		}
		return 1
	}
	return 0
}

func cmdWatch(args []string) int {
	fs, common := newFlagSet("watch", "watch [flags]")
	useGate := fs.Bool("gate", true, "Skip ticks outside GATE_START_HOUR-GATE_END_HOUR WIB")
	useLock := fs.Bool("lock", true, "Hold an advisory lock next to the ledger during each pass")
	fs.Parse(args)

	cfg, logger, ok := setup(common)
	if !ok {
		return 1
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tick := func() {
		if _, err := a.pass(ctx, *useGate, *useLock); err != nil && !errors.Is(err, errLocked) {
			// Fatal for the pass, not for the watcher; the next tick tries again.
			logger.Warn("pass failed", zap.Error(err))
		}
	}

	clog := cronLogger{logger.Named("cron").Sugar()}
	c := cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)))
	schedule := fmt.Sprintf("@every %s", cfg.CheckInterval)
	if _, err := c.AddFunc(schedule, tick); err != nil {
		logger.Error("invalid schedule", zap.String("schedule", schedule), zap.Error(err))
		return 1
	}

	logger.Info("watching",
		zap.Duration("interval", cfg.CheckInterval),
		zap.Stringer("window", a.window()),
		zap.Bool("gate", *useGate))

	tick()
	c.Start()
	<-ctx.Done()

	logger.Info("stopping, waiting for the running pass")
	<-c.Stop().Done()
	return 0
}

func cmdCheckConfig(args []string) int {
	fs, common := newFlagSet("check-config", "check-config [flags]")
	fs.Parse(args)

	cfg, logger, ok := setup(common)
	if !ok {
		return 1
	}
	defer logger.Sync()

	dests, err := config.LoadDestinations(cfg.PagesFile, zap.NewNop())
	if err != nil {
		logger.Error("invalid destinations", zap.Error(err))
		return 1
	}

	fmt.Println(describeConfig(cfg))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PAGE ID\tPAGE NAME\tTOKEN")
	for _, d := range dests {
		token := "missing"
		if d.AccessToken != "" {
			token = "set"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, truncate(d.Name, 40), token)
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nConfiguration OK: %d destinations\n", len(dests))
	return 0
}

func cmdLedger(args []string) int {
	fs, common := newFlagSet("ledger", "ledger [flags]")
	list := fs.Bool("list", false, "List every recorded item")
	fs.Parse(args)

	cfg, logger, ok := setup(common)
	if !ok {
		return 1
	}
	defer logger.Sync()

	ledger, err := storage.LoadLedger(cfg.DataFile)
	if err != nil {
		logger.Error("cannot read ledger", zap.String("path", cfg.DataFile), zap.Error(err))
		return 1
	}

	counts := ledger.DeliveryCounts()
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DESTINATION\tDELIVERIES")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%d\n", id, counts[id])
	}
	w.Flush()

	if *list {
		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ITEM ID\tTITLE\tDESTINATIONS\tPROCESSED")
		for _, id := range ledger.ItemIDs() {
			e, _ := ledger.Entry(id)
			dests := make([]string, 0, len(e.Destinations))
			for d := range e.Destinations {
				dests = append(dests, d)
			}
			sort.Strings(dests)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.ItemID,
				truncate(e.Title, 50),
				strings.Join(dests, ","),
				e.ProcessedAt.Format(time.RFC3339),
			)
		}
		w.Flush()
	}

	fmt.Fprintf(os.Stderr, "\nTotal: %d items\n", ledger.Len())
	return 0
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
