package core

import (
	"errors"
	"testing"

	"armlink/protocol"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	handler := func(msg protocol.Message) (*protocol.Message, error) {
		called = true
		return nil, nil
	}

	if err := registry.Register(protocol.MsgNop, handler); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	cmd, ok := registry.GetCommand(protocol.MsgNop)
	if !ok {
		t.Fatal("Failed to retrieve registered command")
	}
	if cmd.Name() != "nop" {
		t.Errorf("Expected command name 'nop', got '%s'", cmd.Name())
	}

	reply, err := registry.Dispatch(protocol.Message{Type: protocol.MsgNop})
	if err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if reply != nil {
		t.Errorf("Expected no reply, got %v", reply)
	}
	if !called {
		t.Error("Command handler was not called")
	}

	_, err = registry.Dispatch(protocol.Message{Type: protocol.MsgGetStatus})
	if !errors.Is(err, ErrUnhandledCommand) {
		t.Errorf("Expected ErrUnhandledCommand, got %v", err)
	}
}

func TestCommandRegistryRejectsBadRegistrations(t *testing.T) {
	registry := NewCommandRegistry()

	if err := registry.Register(protocol.MessageType(7), func(protocol.Message) (*protocol.Message, error) { return nil, nil }); err == nil {
		t.Error("Expected error registering an undefined message type")
	}
	if err := registry.Register(protocol.MsgNop, nil); err == nil {
		t.Error("Expected error registering a nil handler")
	}
	if registry.Count() != 0 {
		t.Errorf("Expected empty registry, got %d commands", registry.Count())
	}
}

func TestCommandRegistryReplace(t *testing.T) {
	registry := NewCommandRegistry()

	first := func(protocol.Message) (*protocol.Message, error) { return nil, errors.New("first") }
	second := func(protocol.Message) (*protocol.Message, error) { return nil, errors.New("second") }

	registry.Register(protocol.MsgGetStatus, first)
	registry.Register(protocol.MsgGetStatus, second)

	if registry.Count() != 1 {
		t.Errorf("Expected 1 command, got %d", registry.Count())
	}
	_, err := registry.Dispatch(protocol.Message{Type: protocol.MsgGetStatus})
	if err == nil || err.Error() != "second" {
		t.Errorf("Expected the replacement handler to run, got %v", err)
	}
}

func TestCommandRegistryNames(t *testing.T) {
	registry := NewCommandRegistry()
	noop := func(protocol.Message) (*protocol.Message, error) { return nil, nil }

	registry.Register(protocol.MsgGetVersion, noop)
	registry.Register(protocol.MsgNop, noop)

	names := registry.Names()
	if len(names) != 2 || names[0] != "nop" || names[1] != "get_version" {
		t.Errorf("Unexpected names: %v", names)
	}
}
