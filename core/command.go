package core

import (
	"errors"
	"fmt"
	"sync"

	"armlink/protocol"
)

// ErrUnhandledCommand is returned by Dispatch for a message type with no
// registered handler
var ErrUnhandledCommand = errors.New("unhandled command")

// CommandHandler handles one decoded message. A nil reply means nothing is
// sent back to the host.
type CommandHandler func(msg protocol.Message) (reply *protocol.Message, err error)

// Command represents a registered message handler
type Command struct {
	Type    protocol.MessageType
	Handler CommandHandler
}

// Name returns the wire name of the command
func (c *Command) Name() string {
	return c.Type.String()
}

// CommandRegistry maps message types to handlers
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[protocol.MessageType]*Command
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[protocol.MessageType]*Command),
	}
}

// Register installs handler for message type t, replacing any previous one
func (r *CommandRegistry) Register(t protocol.MessageType, handler CommandHandler) error {
	if !t.Valid() {
		return fmt.Errorf("cannot register handler for undefined message type %d", uint16(t))
	}
	if handler == nil {
		return fmt.Errorf("nil handler for %s", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[t] = &Command{Type: t, Handler: handler}
	return nil
}

// GetCommand retrieves the handler registered for t
func (r *CommandRegistry) GetCommand(t protocol.MessageType) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[t]
	return cmd, ok
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Names returns the registered command names in tag order
func (r *CommandRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for _, t := range protocol.MessageTypes() {
		if _, ok := r.commands[t]; ok {
			names = append(names, t.String())
		}
	}
	return names
}

// Dispatch calls the handler registered for msg.Type
func (r *CommandRegistry) Dispatch(msg protocol.Message) (*protocol.Message, error) {
	cmd, ok := r.GetCommand(msg.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnhandledCommand, msg.Type)
	}
	return cmd.Handler(msg)
}
