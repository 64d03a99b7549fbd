package main

import (
	"context"
	"net"
	"testing"

	"go.uber.org/zap"

	"armlink/core"
	"armlink/host/device"
	"armlink/protocol"
)

func TestMessageCommands(t *testing.T) {
	cmds := messageCommands(&host{logger: zap.NewNop()})
	types := protocol.MessageTypes()
	if len(cmds) != len(types) {
		t.Fatalf("expected %d commands, got %d", len(types), len(cmds))
	}
	for i, typ := range types {
		if cmds[i].Name != typ.String() {
			t.Errorf("command %d: expected %s, got %s", i, typ, cmds[i].Name)
		}
		if cmds[i].Action == nil {
			t.Errorf("command %s has no action", cmds[i].Name)
		}
	}
}

func TestExchange(t *testing.T) {
	hostEnd, far := net.Pipe()
	fw := core.NewFirmware()
	go fw.Serve(context.Background(), far)

	dev := device.New(hostEnd)
	defer dev.Close()
	defer far.Close()

	h := &host{logger: zap.NewNop()}
	ctx := context.Background()
	for _, typ := range protocol.MessageTypes() {
		if err := h.exchange(ctx, dev, protocol.NewMessage(typ)); err != nil {
			t.Errorf("%s: %v", typ, err)
		}
	}
}
