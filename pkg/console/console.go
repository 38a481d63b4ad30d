// Package console sends commands to a running game instance. Exactly
// one backend is active per session: RconConsole speaks the RCON
// network protocol, ExecConsole injects commands through a secondary
// -hijack launch of the executable. Callers stay channel-agnostic
// behind the Console interface.
package console

import (
	"strings"
)

// Console is a single logical command channel to the game. At most one
// command is assumed in flight at a time; callers wanting concurrency
// must serialize around it.
type Console interface {
	// Run sends command with its parameters and returns the response,
	// empty when the backend cannot read one.
	Run(command string, params ...string) (string, error)
	// Close releases the channel. Safe to call more than once.
	Close() error
}

// WithConsole runs fn with c and guarantees the channel is closed on
// every exit path before any failure propagates.
func WithConsole(c Console, fn func(Console) error) (err error) {
	defer func() {
		cerr := c.Close()
		if err == nil {
			err = cerr
		}
	}()

	return fn(c)
}

// commandLine joins a command and its parameters the way the engine
// console expects them.
func commandLine(command string, params []string) string {
	if len(params) == 0 {
		return command
	}

	return command + " " + strings.Join(params, " ")
}
