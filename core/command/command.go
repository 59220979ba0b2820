// Package command builds the command lines sent to remote world clients.
// Commands are opaque text to the gateway; each type renders itself deterministically
// from its typed arguments.
package command

import "strings"

// Command is the base interface for all commands.
type Command interface {
	// CommandName returns the name of the command for logging/debugging
	CommandName() string
	// CommandLine renders the text sent in the request envelope
	CommandLine() string
}

// FireAndForget reports whether the peer never acknowledges the command line.
// Broadcast messages (tellraw) are the only such family.
func FireAndForget(commandLine string) bool {
	return strings.HasPrefix(strings.TrimSpace(commandLine), "tellraw")
}

// Raw is an arbitrary command line supplied by application code.
type Raw struct {
	Line string
}

func (c *Raw) CommandName() string {
	return "Raw"
}

func (c *Raw) CommandLine() string {
	return c.Line
}

// quote wraps a player name so names containing spaces survive the command parser.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `\"`) + `"`
}
