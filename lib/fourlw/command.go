package fourlw

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Command Interface
// --------------------------------------------------------------------------

// Command is a single four letter word.
//
// Run produces the complete response. It must not panic, there is no other
// channel to report a failure than the response text itself.
type Command interface {
	// Name returns the four letter name the command is registered under.
	Name() string
	// Run executes the command and returns its textual response.
	Run() string
}

// CodeOf returns the code of a command, derived from its name.
func CodeOf(cmd Command) (Code, error) {
	return ToCode(cmd.Name())
}

// --------------------------------------------------------------------------
// Function backed command
// --------------------------------------------------------------------------

// command is a table entry binding a name to a run function.
type command struct {
	name string
	run  func() string
}

// NewCommand creates a command from a name and a run function.
// A panic inside run is recovered and rendered as an error line.
func NewCommand(name string, run func() string) Command {
	return &command{name: name, run: run}
}

func (c *command) Name() string {
	return c.name
}

func (c *command) Run() (resp string) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("four letter word %s panicked: %v", c.name, r)
			resp = errorLine(c.name, fmt.Errorf("%v", r))
		}
	}()
	return c.run()
}

// errorLine renders a failure as the response of a command
func errorLine(name string, err error) string {
	return fmt.Sprintf("Failed to execute %s: %v\n", name, err)
}
