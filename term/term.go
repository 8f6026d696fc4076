// Package term puts the host console into raw mode for the duration of an
// interactive boot and returns a closure that restores the prior state.
package term

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether fd refers to a terminal, the same check
// machine.Boot uses to decide whether to enter interactive mode at all.
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// SetRawMode puts fd into raw mode (no echo, no line buffering, no signal
// generation) and returns a function that restores the prior terminal
// state. Safe to call the returned restore function more than once.
func SetRawMode(fd uintptr) (restore func(), err error) {
	prev, err := term.MakeRaw(int(fd))
	if err != nil {
		return nil, err
	}

	restored := false

	return func() {
		if restored {
			return
		}

		restored = true
		_ = term.Restore(int(fd), prev)
	}, nil
}

// Stdin is the host's standard input fd, exposed for callers that need it
// without importing os directly (matching term's role as the sole owner
// of terminal-mode concerns).
var Stdin = os.Stdin.Fd()
