package core

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"armlink/protocol"
)

// Firmware is the device side of the link: it decodes frames, dispatches
// them to the registered handlers and encodes the replies.
type Firmware struct {
	registry *CommandRegistry
	layout   protocol.Layout
	joints   JointDriver
	clock    Clock

	mu                 sync.Mutex
	transmissionErrors uint16
}

// Option configures a Firmware
type Option func(*Firmware)

// WithLayout selects the tag layout (protocol.DefaultLayout otherwise)
func WithLayout(layout protocol.Layout) Option {
	return func(f *Firmware) { f.layout = layout }
}

// WithJoints sets the joint driver (a MemoryJoints otherwise)
func WithJoints(d JointDriver) Option {
	return func(f *Firmware) { f.joints = d }
}

// WithClock sets the uptime clock (milliseconds since NewFirmware otherwise)
func WithClock(c Clock) Option {
	return func(f *Firmware) { f.clock = c }
}

// NewFirmware creates a Firmware with the core commands registered
func NewFirmware(opts ...Option) *Firmware {
	f := &Firmware{
		registry: NewCommandRegistry(),
		layout:   protocol.DefaultLayout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.joints == nil {
		f.joints = NewMemoryJoints()
	}
	if f.clock == nil {
		f.clock = MillisSince(time.Now())
	}

	f.initCoreCommands()
	return f
}

// initCoreCommands registers a handler for every message type. The table is
// fixed at build time, so a failed registration is a programming error.
func (f *Firmware) initCoreCommands() {
	handlers := [...]struct {
		t       protocol.MessageType
		handler CommandHandler
	}{
		{protocol.MsgNop, f.handleNop},
		{protocol.MsgSetJointsPositionSpeed, f.handleSetJoints},
		{protocol.MsgGetJointsPositionSpeed, f.handleGetJoints},
		{protocol.MsgGetStatus, f.handleGetStatus},
		{protocol.MsgGetVersion, f.handleGetVersion},
	}
	for _, h := range handlers {
		if err := f.registry.Register(h.t, h.handler); err != nil {
			panic("core: " + err.Error())
		}
	}
}

// Registry returns the command registry, for builds that add or replace
// handlers
func (f *Firmware) Registry() *CommandRegistry {
	return f.registry
}

// TransmissionErrors returns the number of frames that failed to decode
func (f *Firmware) TransmissionErrors() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transmissionErrors
}

// RecordTransmissionError counts one bad frame. The counter saturates.
func (f *Firmware) RecordTransmissionError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transmissionErrors < math.MaxUint16 {
		f.transmissionErrors++
	}
}

// HandleFrame processes one received frame and returns the encoded reply,
// or nil when the command has no reply
func (f *Firmware) HandleFrame(frame []byte) ([]byte, error) {
	msg, err := f.layout.Decode(frame)
	if err != nil {
		f.RecordTransmissionError()
		return nil, err
	}

	reply, err := f.registry.Dispatch(msg)
	if err != nil || reply == nil {
		return nil, err
	}
	return f.layout.Encode(*reply)
}

// Serve reads frames from rw until the stream ends, rw fails or ctx is done,
// writing a reply for every command that has one. Handler errors do not stop
// the loop. A pending read is only interrupted by closing rw.
func (f *Firmware) Serve(ctx context.Context, rw io.ReadWriter) error {
	frame := make([]byte, protocol.MessageLength)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := io.ReadFull(rw, frame); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				// Stream ended mid-frame
				f.RecordTransmissionError()
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		reply, err := f.HandleFrame(frame)
		if err != nil || reply == nil {
			continue
		}
		if _, err := rw.Write(reply); err != nil {
			return err
		}
	}
}

func (f *Firmware) handleNop(msg protocol.Message) (*protocol.Message, error) {
	return nil, nil
}

func (f *Firmware) handleSetJoints(msg protocol.Message) (*protocol.Message, error) {
	p, ok := msg.Payload.(protocol.JointsPositionSpeed)
	if !ok {
		return nil, protocol.ErrPayloadMismatch
	}
	for i, j := range p.Joints {
		if err := f.joints.SetJoint(i, j); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (f *Firmware) handleGetJoints(msg protocol.Message) (*protocol.Message, error) {
	return &protocol.Message{
		Type:    protocol.MsgGetJointsPositionSpeed,
		Payload: readJoints(f.joints),
	}, nil
}

func (f *Firmware) handleGetStatus(msg protocol.Message) (*protocol.Message, error) {
	return &protocol.Message{
		Type: protocol.MsgGetStatus,
		Payload: protocol.Status{
			Uptime:             f.clock(),
			TransmissionErrors: f.TransmissionErrors(),
		},
	}, nil
}

func (f *Firmware) handleGetVersion(msg protocol.Message) (*protocol.Message, error) {
	return &protocol.Message{
		Type:    protocol.MsgGetVersion,
		Payload: protocol.FirmwareVersion(),
	}, nil
}
