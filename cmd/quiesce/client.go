package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/quiesce/pkg/activity"
	"github.com/Veraticus/quiesce/pkg/control"
	"github.com/Veraticus/quiesce/pkg/status"
)

// requestTimeout bounds the non-blocking control requests.
const requestTimeout = 5 * time.Second

// notRunning adds a hint to control.ErrNotRunning.
func notRunning(err error) error {
	if errors.Is(err, control.ErrNotRunning) {
		return fmt.Errorf("%w (start it with \"quiesce watch\")", err)
	}
	return err
}

func newStatusCommand(global *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the watched data is active or idle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := global.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			resp, err := client.State(ctx)
			if err != nil {
				return notRunning(err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			return status.Print(out, resp.State(), resp.InactivityTimeout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw state as JSON")
	return cmd
}

func newPulseCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pulse",
		Short: "Report one activity signal to the running monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := global.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			return notRunning(client.NotifyActivity(ctx))
		},
	}
}

func newSetTimeoutCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-timeout <duration|ms>",
		Short: "Change the running monitor's inactivity timeout",
		Example: `  quiesce set-timeout 5s
  quiesce set-timeout 1500`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, err := parseNonNegativeDuration(args[0])
			if err != nil {
				return err
			}
			client, err := global.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if err := client.SetInactivityTimeout(ctx, timeout); err != nil {
				return notRunning(err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "inactivity timeout set to %s\n", timeout)
			return err
		},
	}
}

func newWaitCommand(global *globalOptions) *cobra.Command {
	timeout := durationValue(30 * time.Second)
	var selfTest bool

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until the watched data is idle",
		Long: `Block until the running monitor reports idle, or until --timeout passes.

Exit status is 0 when idle, 3 on timeout and 4 when the wait was cancelled.
With --self-test no daemon is needed: an in-process monitor is pulsed once
and waited on.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var outcome activity.Outcome
			if selfTest {
				cfg, err := global.loadConfig()
				if err != nil {
					return err
				}
				outcome = runSelfTest(ctx, cfg.InactivityTimeout.Std(), time.Duration(timeout))
			} else {
				client, err := global.client()
				if err != nil {
					return err
				}
				outcome, err = client.Wait(ctx, time.Duration(timeout))
				if err != nil {
					return notRunning(err)
				}
			}

			if _, err := fmt.Fprintln(cmd.OutOrStdout(), outcome); err != nil {
				return err
			}
			return outcomeError(outcome)
		},
	}
	cmd.Flags().Var(&timeout, "timeout", "give up after this long (e.g. 30s, or milliseconds)")
	cmd.Flags().BoolVar(&selfTest, "self-test", false, "run against an in-process monitor instead of the daemon")
	return cmd
}

// runSelfTest pulses a private monitor once and waits for it to go idle.
func runSelfTest(ctx context.Context, inactivity, timeout time.Duration) activity.Outcome {
	m := activity.New(activity.WithInactivityTimeout(inactivity))
	defer m.Teardown()

	m.NotifyActivity()
	return m.AwaitInactive(ctx, timeout)
}

// outcomeError maps a wait outcome onto the process exit status.
func outcomeError(outcome activity.Outcome) error {
	switch outcome {
	case activity.OutcomeIdle:
		return nil
	case activity.OutcomeTimedOut:
		return &exitCodeError{code: exitTimedOut}
	default:
		return &exitCodeError{code: exitCancelled}
	}
}
