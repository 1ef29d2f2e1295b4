package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

type watchOptions struct {
	statusCmd  string
	statusFile string
	stdin      bool
	statusLine bool
	quiet      bool
	timeout    durationValue
	match      []string
	ignore     []string
}

func newWatchCommand(global *globalOptions) *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Run the activity monitor",
		Long: `Watch the given directory trees (or watch_paths from the config) and any
status source, and serve the control socket until interrupted.

Status lines can come from a command (--status-cmd), a log file that is
followed like tail -F (--status-file) or stdin (--stdin). Lines matching an activity pattern or a --match expression count as activity.`,
		Example: `  quiesce watch ~/vault
  obsidian-sync --verbose | quiesce watch --stdin
  quiesce watch --status-cmd 'rclone bisync ~/vault remote: -v' --timeout 5s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, global, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.statusCmd, "status-cmd", "", "command whose output is classified as sync status")
	flags.StringVar(&opts.statusFile, "status-file", "", "log file whose new lines are classified as sync status")
	flags.BoolVar(&opts.stdin, "stdin", false, "classify status lines read from stdin")
	flags.BoolVar(&opts.statusLine, "status-line", false, "draw a status line on stderr")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "send no notifications")
	flags.Var(&opts.timeout, "timeout", "inactivity timeout (e.g. 2s, or milliseconds)")
	flags.StringArrayVar(&opts.match, "match", nil, "extra regular expression marking a status line as activity")
	flags.StringSliceVar(&opts.ignore, "ignore", nil, "extra glob of paths to ignore")
	return cmd
}

func runWatch(cmd *cobra.Command, global *globalOptions, opts *watchOptions, args []string) error {
	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("status-line") {
		cfg.StatusLine = opts.statusLine
	}
	if opts.quiet {
		cfg.Quiet = true
	}
	cfg.Ignore = append(cfg.Ignore, opts.ignore...)

	src := Sources{
		Paths:      cfg.WatchPaths,
		StatusCmd:  cfg.StatusCommand,
		StatusFile: cfg.StatusFile,
		Match:      opts.match,
	}
	if len(args) > 0 {
		src.Paths = args
	}
	if flags.Changed("status-cmd") {
		src.StatusCmd = opts.statusCmd
	}
	if flags.Changed("status-file") {
		src.StatusFile = opts.statusFile
	}
	if opts.stdin {
		src.Stdin = cmd.InOrStdin()
	}
	if flags.Changed("timeout") {
		timeout := time.Duration(opts.timeout)
		src.Timeout = &timeout
	}

	deps, err := NewDependencies(cfg, global.configFile(), src, Streams{
		Out:    cmd.OutOrStdout(),
		ErrOut: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewApplication(deps).Run(ctx)
}
