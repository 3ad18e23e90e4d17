package main

import (
	"fmt"
	"io"

	"github.com/fwojciec/otokit"
)

var _ otokit.Listener = (*Console)(nil)

// Console prints run events to the terminal. Progress lines go to stdout,
// errors to stderr. Callbacks arrive on the dispatch loop, one at a time.
type Console struct {
	stdout io.Writer
	stderr io.Writer
}

// NewConsole returns a Console writing to the given streams.
func NewConsole(stdout, stderr io.Writer) *Console {
	return &Console{stdout: stdout, stderr: stderr}
}

func (c *Console) OnMessage(text string) {
	fmt.Fprintln(c.stdout, text)
}

func (c *Console) OnAuthStarted() {}

func (c *Console) OnFinished() {
	fmt.Fprintln(c.stdout, "done")
}

func (c *Console) OnError(err error) {
	fmt.Fprintf(c.stderr, "error: %s\n", otokit.ErrorMessage(err))
}
