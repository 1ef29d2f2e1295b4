// Command quiesce watches a directory tree or a sync client's status
// output and tells other programs when the data has gone quiet.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCommand()
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return 0
	}

	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintf(os.Stderr, "quiesce: %v\n", exitErr.err)
		}
		return exitErr.code
	}

	fmt.Fprintf(os.Stderr, "quiesce: %v\n", err)
	return 1
}

// Exit codes beyond 0 and 1.
const (
	exitTimedOut  = 3
	exitCancelled = 4
)

// exitCodeError makes the process exit with code. err, if set, is printed.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitCodeError) Unwrap() error { return e.err }
