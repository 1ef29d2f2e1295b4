package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Veraticus/quiesce/pkg/process"
)

func newExecCommand(global *globalOptions) *cobra.Command {
	timeout := durationValue(30 * time.Second)
	var force bool

	cmd := &cobra.Command{
		Use:   "exec [flags] -- command [args...]",
		Short: "Run a command once the watched data is idle",
		Long: `Wait for the running monitor to report idle, then run the command and exit
with its status. If the data is still active after --timeout the command is
not run and quiesce exits 3, unless --force is given.

On a terminal the command runs in a pseudo-terminal; otherwise it inherits
stdin, stdout and stderr. It sees QUIESCE_GATED=1 in its environment.`,
		Example: `  quiesce exec --timeout 1m -- git -C ~/vault commit -am backup
  quiesce exec --force -- restic backup ~/vault`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := global.client()
			if err != nil {
				return err
			}

			var runner process.Runner = &process.ExecRunner{
				Stdin:  cmd.InOrStdin(),
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			}
			if isTerminal(os.Stdin) && isTerminal(os.Stdout) {
				runner = process.NewManager(nil)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			gate := process.NewGate(client, runner, time.Duration(timeout), force)
			code, err := gate.Run(ctx, args[0], args[1:])
			return execError(code, notRunning(err))
		},
	}

	flags := cmd.Flags()
	flags.SetInterspersed(false)
	flags.Var(&timeout, "timeout", "longest wait for idle (e.g. 30s, or milliseconds)")
	flags.BoolVarP(&force, "force", "f", false, "run the command even if still active after the timeout")
	return cmd
}

// execError maps a gated run onto the process exit status: the child's own
// code, or 3 and 4 when it never ran.
func execError(code int, err error) error {
	switch {
	case errors.Is(err, process.ErrStillActive):
		return &exitCodeError{code: exitTimedOut, err: err}
	case errors.Is(err, process.ErrWaitCancelled):
		return &exitCodeError{code: exitCancelled, err: err}
	case err != nil:
		return err
	case code != 0:
		return &exitCodeError{code: code}
	}
	return nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
