package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Veraticus/quiesce/pkg/config"
	"github.com/Veraticus/quiesce/pkg/control"
	"github.com/Veraticus/quiesce/pkg/logging"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	socketPath string
	debug      bool
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "quiesce",
		Short: "Tell when a synced directory has gone quiet",
		Long: `quiesce debounces file-system events or sync status lines into a single
ACTIVE/IDLE signal. "quiesce watch" runs the monitor; the other commands
talk to it over a Unix socket so scripts can wait for sync to settle.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return logging.Init(logging.Options{
				Debug:  opts.debug,
				Level:  opts.logLevel,
				Output: cmd.ErrOrStderr(),
			})
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (env: QUIESCE_CONFIG)")
	flags.StringVar(&opts.socketPath, "socket", "", "control socket path (env: QUIESCE_SOCKET)")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "debug logging (env: QUIESCE_DEBUG)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(
		newWatchCommand(opts),
		newStatusCommand(opts),
		newWaitCommand(opts),
		newPulseCommand(opts),
		newSetTimeoutCommand(opts),
		newExecCommand(opts),
	)
	return root
}

// configFile returns the config path in effect.
func (o *globalOptions) configFile() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.Path()
}

// loadConfig loads configuration and applies persistent flag overrides.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(o.configFile())
	if err != nil {
		return nil, err
	}
	if o.socketPath != "" {
		cfg.SocketPath = o.socketPath
	}
	return cfg, nil
}

// client returns a control client for the configured socket.
func (o *globalOptions) client() (*control.Client, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return control.NewClient(cfg.SocketPath), nil
}

// durationValue is a pflag.Value accepting Go durations or bare
// milliseconds.
type durationValue time.Duration

var _ pflag.Value = (*durationValue)(nil)

func (d *durationValue) String() string { return time.Duration(*d).String() }

func (d *durationValue) Set(s string) error {
	parsed, err := parseNonNegativeDuration(s)
	if err != nil {
		return err
	}
	*d = durationValue(parsed)
	return nil
}

func (d *durationValue) Type() string { return "duration" }

func parseNonNegativeDuration(s string) (time.Duration, error) {
	parsed, err := config.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if parsed < 0 {
		return 0, fmt.Errorf("duration must be non-negative, got %s", s)
	}
	return parsed, nil
}
