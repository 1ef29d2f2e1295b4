package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/quiesce/pkg/activity"
	"github.com/Veraticus/quiesce/pkg/config"
	"github.com/Veraticus/quiesce/pkg/control"
	"github.com/Veraticus/quiesce/pkg/interfaces"
	"github.com/Veraticus/quiesce/pkg/notification"
	"github.com/Veraticus/quiesce/pkg/source"
	"github.com/Veraticus/quiesce/pkg/status"
)

// serverStopTimeout bounds how long shutdown waits for open control requests.
const serverStopTimeout = 2 * time.Second

// Sources selects the signal sources a watch run uses.
type Sources struct {
	Paths      []string
	StatusCmd  string
	StatusFile string
	Stdin      io.Reader
	Match      []string
	// Timeout, if set, replaces the configured inactivity timeout until the
	// config file changes it.
	Timeout *time.Duration
}

// Streams are where the daemon writes its status line and notifications.
type Streams struct {
	Out    io.Writer
	ErrOut io.Writer
}

// Dependencies holds all the dependencies for the application
type Dependencies struct {
	Config              *config.Config
	ConfigPath          string
	Monitor             *activity.Monitor
	StatusIndicator     *status.Indicator
	StatusReporter      *status.Reporter
	Notifier            notification.Notifier
	NotificationManager *notification.Manager
	IdleNotifier        *notification.IdleNotifier
	Watcher             *source.FSWatcher
	LineSource          *source.LineSource
	Server              *control.Server

	sources     Sources
	fileTimeout time.Duration
	stopChan    chan struct{}
	closeOnce   sync.Once
}

// NewDependencies creates all dependencies with the given configuration
func NewDependencies(cfg *config.Config, configPath string, src Sources, streams Streams) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		ConfigPath:  configPath,
		sources:     src,
		fileTimeout: cfg.InactivityTimeout.Std(),
		stopChan:    make(chan struct{}),
	}

	// Status indicator first: it is both the countdown sink and the
	// notification status reporter.
	mode := indicatorMode(cfg.StatusLine, streams.ErrOut)
	deps.StatusIndicator = status.NewIndicator(streams.ErrOut, mode)
	deps.StatusReporter = status.NewReporter(deps.StatusIndicator)

	deps.Notifier = newNotifier(cfg, streams.Out, notificationRoot(src.Paths))
	if deps.Notifier != nil {
		var reporter interfaces.StatusReporter
		if cfg.NtfyTopic != "" {
			reporter = deps.StatusReporter
		}
		deps.NotificationManager = notification.NewManager(deps.Notifier, notification.NewRateLimiter(cfg.RateLimit), reporter)
		deps.IdleNotifier = notification.NewIdleNotifier(deps.NotificationManager, cfg.MinActive.Std())
	}

	timeout := deps.fileTimeout
	if src.Timeout != nil {
		timeout = *src.Timeout
	}
	opts := []activity.Option{
		activity.WithInactivityTimeout(timeout),
		activity.WithPollInterval(cfg.PollInterval.Std()),
		activity.WithRefreshInterval(cfg.RefreshInterval.Std()),
	}
	if mode != status.ModeOff {
		opts = append(opts,
			activity.WithCountdownSink(deps.StatusIndicator),
			activity.WithObserver(deps.StatusIndicator))
	}
	if deps.IdleNotifier != nil {
		opts = append(opts, activity.WithObserver(deps.IdleNotifier))
	}
	deps.Monitor = activity.New(opts...)

	if len(src.Paths) > 0 {
		ops, err := source.ParseOps(cfg.Events)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("events: %w", err)
		}
		watcher, err := source.NewFSWatcher(src.Paths, cfg.Ignore, source.OpFilter(ops), deps.Monitor)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Watcher = watcher
	}

	if src.StatusCmd != "" || src.StatusFile != "" || src.Stdin != nil {
		predicate, err := linePredicate(cfg, src.Match)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.LineSource = source.NewLineSource(predicate, deps.Monitor)
	}

	deps.Server = control.NewServer(cfg.SocketPath, deps.Monitor)

	return deps, nil
}

// indicatorMode picks how the status indicator renders on w.
func indicatorMode(enabled bool, w io.Writer) status.Mode {
	if !enabled || w == nil {
		return status.ModeOff
	}
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		return status.ModeStatusLine
	}
	return status.ModePlain
}

// newNotifier builds the delivery end of the notification chain, or nil
// when notifications are off.
func newNotifier(cfg *config.Config, out io.Writer, root string) notification.Notifier {
	switch {
	case cfg.Quiet:
		return nil
	case cfg.NtfyTopic != "":
		return notification.NewContextNotifier(notification.NewNtfyClient(cfg.NtfyServer, cfg.NtfyTopic), root)
	default:
		return notification.NewStdoutNotifier(out)
	}
}

func notificationRoot(paths []string) string {
	if len(paths) > 0 {
		return paths[0]
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return ""
}

// linePredicate combines the configured status classifier with any extra
// --match expressions.
func linePredicate(cfg *config.Config, extra []string) (source.LinePredicate, error) {
	classifier := source.NewStatusClassifier(cfg.ActivityPatterns, cfg.IgnorePatterns)
	if len(extra) == 0 {
		return classifier.IsActivity, nil
	}

	predicates := []source.LinePredicate{classifier.IsActivity}
	for _, expr := range extra {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid --match %q: %w", expr, err)
		}
		predicates = append(predicates, re.MatchString)
	}
	return source.AnyLine(predicates...), nil
}

// Close cleans up all dependencies. It is safe to call more than once.
func (d *Dependencies) Close() {
	d.closeOnce.Do(func() {
		if d.Monitor != nil {
			d.Monitor.Teardown()
		}

		if d.Server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), serverStopTimeout)
			if err := d.Server.Stop(ctx); err != nil {
				logrus.WithField("component", "app").WithError(err).Debug("control server stop")
			}
			cancel()
		}

		if d.IdleNotifier != nil {
			_ = d.IdleNotifier.Close()
		}

		close(d.stopChan)
		if d.StatusIndicator != nil {
			_ = d.StatusIndicator.Clear() // Best effort
		}
	})
}

// Application represents the main application
type Application struct {
	deps *Dependencies
	log  *logrus.Entry
}

// NewApplication creates a new application with the given dependencies
func NewApplication(deps *Dependencies) *Application {
	return &Application{
		deps: deps,
		log:  logrus.WithField("component", "app"),
	}
}

// Run serves the control socket and runs every signal source until ctx is
// done or a source fails. The monitor is torn down before Run returns.
func (a *Application) Run(ctx context.Context) error {
	deps := a.deps
	defer deps.Close()

	if err := deps.Server.Start(); err != nil {
		return err
	}

	deps.StatusIndicator.StartAutoRefresh(deps.Config.RefreshInterval.Std(), deps.stopChan)

	a.log.WithFields(logrus.Fields{
		"paths":       deps.sources.Paths,
		"status_cmd":  deps.sources.StatusCmd,
		"status_file": deps.sources.StatusFile,
		"timeout":     deps.Monitor.InactivityTimeout(),
		"socket":      deps.Config.SocketPath,
	}).Info("watching for activity")
	if deps.Watcher == nil && deps.LineSource == nil {
		a.log.Info("no local signal sources; waiting for pulses on the control socket")
	}

	g, ctx := errgroup.WithContext(ctx)

	if deps.Watcher != nil {
		g.Go(func() error { return deps.Watcher.Run(ctx) })
	}
	if deps.LineSource != nil && deps.sources.StatusCmd != "" {
		g.Go(func() error { return deps.LineSource.RunCommand(ctx, deps.sources.StatusCmd) })
	}
	if deps.LineSource != nil && deps.sources.StatusFile != "" {
		g.Go(func() error { return deps.LineSource.TailFile(ctx, deps.sources.StatusFile) })
	}
	if deps.LineSource != nil && deps.sources.Stdin != nil {
		g.Go(func() error { return a.consumeStdin(ctx) })
	}
	g.Go(func() error { return a.watchConfig(ctx) })

	// Teardown as soon as ctx ends so blocked waiters are released before
	// the control server drains its connections.
	g.Go(func() error {
		<-ctx.Done()
		deps.Monitor.Teardown()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.log.Info("stopped")
	return err
}

// consumeStdin feeds stdin to the line source. A read blocked on a terminal
// cannot be interrupted, so the reader is abandoned once ctx is done.
func (a *Application) consumeStdin(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- a.deps.LineSource.Consume(ctx, a.deps.sources.Stdin) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("stdin: %w", err)
		}
		a.log.Debug("stdin closed")
		return nil
	case <-ctx.Done():
		return nil
	}
}

// watchConfig applies inactivity_timeout changes from the config file. A
// config directory that cannot be watched only disables live reload.
func (a *Application) watchConfig(ctx context.Context) error {
	path := a.deps.ConfigPath
	if path != "" {
		if _, err := os.Stat(filepath.Dir(path)); err != nil {
			a.log.WithField("path", path).Debug("config directory missing, live reload off")
			path = ""
		}
	}

	err := config.Watch(ctx, path, a.applyConfig)
	if err != nil {
		a.log.WithError(err).Warn("config live reload unavailable")
		<-ctx.Done()
	}
	return nil
}

// applyConfig only reacts to a changed file value, so a --timeout override
// survives unrelated edits.
func (a *Application) applyConfig(cfg *config.Config) {
	timeout := cfg.InactivityTimeout.Std()
	if timeout == a.deps.fileTimeout {
		return
	}
	a.deps.fileTimeout = timeout
	a.deps.Monitor.SetInactivityTimeout(timeout)
	a.deps.StatusIndicator.Redraw()
	a.log.WithField("timeout", timeout).Info("inactivity timeout reloaded")
}
