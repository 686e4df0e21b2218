package core

import (
	"sync"

	"escpwm/errcode"
	"escpwm/protocol"
)

// CommandHandler is a function that handles a command with raw frame data
// The handler is responsible for decoding its own arguments from the data pointer
type CommandHandler func(data *[]byte) error

// Command represents a registered command or response
type Command struct {
	ID      uint16
	Name    string
	Format  string // Argument format (e.g., "index=%c value=%hu")
	Handler CommandHandler
}

// CommandRegistry maps message IDs to handlers. IDs are dense and assigned
// in registration order, so the table is a slice indexed by ID.
type CommandRegistry struct {
	mu     sync.RWMutex
	table  []*Command
	byName map[string]*Command
}

var globalRegistry = NewCommandRegistry()

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{byName: make(map[string]*Command)}
}

// RegisterCommand adds a host -> MCU command to the global registry
func RegisterCommand(name string, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, handler)
}

// RegisterResponse adds an MCU -> host response to the global registry
func RegisterResponse(name string, format string) uint16 {
	return globalRegistry.Register(name, format, nil)
}

// Register appends a message and returns its ID.
// Registering an existing name returns its ID unchanged.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cmd, exists := r.byName[name]; exists {
		return cmd.ID
	}
	cmd := &Command{ID: uint16(len(r.table)), Name: name, Format: format, Handler: handler}
	r.table = append(r.table, cmd)
	r.byName[name] = cmd
	return cmd.ID
}

// GetCommand looks a message up by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.table) {
		return nil, false
	}
	return r.table[id], true
}

// GetCommandByName looks a message up by name
func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[name]
	return cmd, ok
}

// Count returns the number of registered messages
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.table)
}

// Dispatch runs the handler for cmdID
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok {
		return &errcode.E{C: errcode.UnknownCommand, Op: "dispatch", Msg: "id " + utoa(uint32(cmdID))}
	}
	if cmd.Handler == nil {
		// Responses flow MCU -> host only
		return &errcode.E{C: errcode.Unsupported, Op: "dispatch", Msg: cmd.Name}
	}
	return cmd.Handler(data)
}

// DispatchCommand is a convenience function using the global registry
func DispatchCommand(cmdID uint16, data *[]byte) error {
	return globalRegistry.Dispatch(cmdID, data)
}

// GetGlobalRegistry returns the global command registry
func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}

// ResetGlobalRegistry replaces the global registry with an empty one
func ResetGlobalRegistry() {
	globalRegistry = NewCommandRegistry()
}

// Global transport for sending responses (set by main)
var globalTransport *protocol.Transport

// SetGlobalTransport sets the global transport for sending responses
func SetGlobalTransport(transport *protocol.Transport) {
	globalTransport = transport
}

// SendResponse sends a response message using the global transport
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(responseName)
	if !ok {
		// All responses are registered at boot
		panic("Response not registered: " + responseName)
	}
	globalTransport.SendCommand(cmd.ID, args)
}
