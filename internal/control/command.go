package control

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandStart    Command = "start"
	CommandStop     Command = "stop"
	CommandShutdown Command = "shutdown"
	CommandStatus   Command = "status"
)

var ErrUnknownCommand = errors.New("unknown command")

// ParseCommand accepts a command name in any case, surrounded by whitespace.
func ParseCommand(raw string) (Command, error) {
	cmd := Command(strings.ToLower(strings.TrimSpace(raw)))
	switch cmd {
	case CommandStart, CommandStop, CommandShutdown, CommandStatus:
		return cmd, nil
	default:
		return "", fmt.Errorf(
			"%w: %q (allowed: start | stop | shutdown | status)",
			ErrUnknownCommand,
			strings.TrimSpace(raw),
		)
	}
}

// Dispatcher applies commands to a State. Shutdown only flags the state; the
// grace window and transport close belong to OnShutdown.
type Dispatcher struct {
	state      *State
	onShutdown func()
}

func NewDispatcher(state *State, onShutdown func()) *Dispatcher {
	if onShutdown == nil {
		onShutdown = func() {}
	}
	return &Dispatcher{state: state, onShutdown: onShutdown}
}

func (d *Dispatcher) State() *State {
	return d.state
}

// Execute parses and applies raw. Unknown commands leave the state untouched.
func (d *Dispatcher) Execute(raw string) (Command, error) {
	cmd, err := ParseCommand(raw)
	if err != nil {
		return "", err
	}
	d.Apply(cmd)
	return cmd, nil
}

func (d *Dispatcher) Apply(cmd Command) {
	switch cmd {
	case CommandStart:
		d.state.Start()
	case CommandStop:
		d.state.Stop()
	case CommandShutdown:
		d.state.Terminate()
		d.onShutdown()
	}
}
