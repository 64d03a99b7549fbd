// Package device is the host-side client for an armlink joint controller.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"armlink/host/logging"
	"armlink/host/serial"
	"armlink/host/transport"
	"armlink/protocol"
)

// DefaultTimeout bounds a request when the context has no deadline
const DefaultTimeout = 2 * time.Second

// ErrUnexpectedPayload is returned when a reply carries the wrong payload
// variant for its tag
var ErrUnexpectedPayload = errors.New("unexpected reply payload")

// Option configures a Device
type Option func(*options)

type options struct {
	logger  *zap.Logger
	timeout time.Duration
	tOpts   []transport.Option
}

// WithLogger sets the logger used by the device and its transport
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTimeout sets the per-request timeout used when the context has none
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithTransportOptions passes options through to the transport
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) { o.tOpts = append(o.tOpts, opts...) }
}

// Device represents a connection to a joint controller
type Device struct {
	transport *transport.Transport
	logger    *zap.Logger
	timeout   time.Duration

	// One request in flight at a time
	requestMu sync.Mutex

	// Replies still owed by requests that gave up waiting, per tag.
	// Guarded by requestMu.
	late map[protocol.MessageType]int
}

// Connect opens the serial port described by cfg and returns a Device on it
func Connect(cfg *serial.Config, opts ...Option) (*Device, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	// Start from a clean line: bytes left over from a previous session
	// would misalign every frame after them
	if err := port.Flush(); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to flush %s: %w", port.Device(), err), port.Close())
	}

	d := New(port, opts...)
	d.logger.Info("connected",
		zap.String("device", port.Device()),
		zap.Int("baud", port.Baud()),
		zap.Duration("read_timeout", port.ReadTimeout()))
	return d, nil
}

// New creates a Device on an already open port
func New(port io.ReadWriteCloser, opts ...Option) *Device {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger)

	tOpts := append([]transport.Option{transport.WithLogger(logger)}, o.tOpts...)
	return &Device{
		transport: transport.New(port, tOpts...),
		logger:    logger,
		timeout:   o.timeout,
		late:      make(map[protocol.MessageType]int),
	}
}

// Close closes the connection to the device
func (d *Device) Close() error {
	return d.transport.Close()
}

// Stats returns the transport counters
func (d *Device) Stats() transport.Stats {
	return d.transport.Stats()
}

// Send transmits msg without waiting for a reply
func (d *Device) Send(ctx context.Context, msg protocol.Message) error {
	return d.transport.Send(ctx, msg)
}

// Receive returns the next message from the device, for listening to
// unsolicited traffic
func (d *Device) Receive(ctx context.Context) (protocol.Message, error) {
	return d.transport.Receive(ctx)
}

// Do sends msg and waits for the first reply carrying the same tag.
// Messages with other tags received meanwhile are dropped. Without a context
// deadline the wait is bounded by the device timeout, counted from the send.
//
// A reply that arrives after its request gave up is recognised and dropped,
// so it never answers a later request with the same tag.
func (d *Device) Do(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	d.requestMu.Lock()
	defer d.requestMu.Unlock()

	for _, stale := range d.transport.Reset() {
		d.takeLate(stale.Type)
		d.logger.Debug("dropping stale message", zap.Stringer("msg", stale))
	}

	if err := d.transport.Send(ctx, msg); err != nil {
		return protocol.Message{}, err
	}

	if _, ok := ctx.Deadline(); !ok && d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	droppedLate := false
	for {
		reply, err := d.transport.Receive(ctx)
		if err != nil {
			// The device may still answer. If a late reply was already
			// dropped here, that one was most likely ours and nothing more
			// is owed.
			if ctx.Err() != nil && !droppedLate {
				d.late[msg.Type]++
			}
			return protocol.Message{}, fmt.Errorf("waiting for %s reply: %w", msg.Type, err)
		}
		if d.takeLate(reply.Type) {
			droppedLate = droppedLate || reply.Type == msg.Type
			d.logger.Debug("dropping late reply", zap.Stringer("msg", reply))
			continue
		}
		if reply.Type == msg.Type {
			return reply, nil
		}
		d.logger.Debug("ignoring unsolicited message",
			zap.Stringer("want", msg.Type), zap.Stringer("msg", reply))
	}
}

// takeLate consumes one owed reply for t, reporting whether there was one
func (d *Device) takeLate(t protocol.MessageType) bool {
	n := d.late[t]
	if n == 0 {
		return false
	}
	if n == 1 {
		delete(d.late, t)
	} else {
		d.late[t] = n - 1
	}
	return true
}

// Nop sends a no-op message
func (d *Device) Nop(ctx context.Context) error {
	return d.Send(ctx, protocol.Message{Type: protocol.MsgNop})
}

// SetJoints commands new position and speed targets for every joint. The
// device does not acknowledge it.
func (d *Device) SetJoints(ctx context.Context, joints protocol.JointsPositionSpeed) error {
	return d.Send(ctx, protocol.Message{Type: protocol.MsgSetJointsPositionSpeed, Payload: joints})
}

// GetJoints reads the current joint state
func (d *Device) GetJoints(ctx context.Context) (protocol.JointsPositionSpeed, error) {
	reply, err := d.Do(ctx, protocol.Message{Type: protocol.MsgGetJointsPositionSpeed})
	if err != nil {
		return protocol.JointsPositionSpeed{}, err
	}
	joints, ok := reply.Payload.(protocol.JointsPositionSpeed)
	if !ok {
		return protocol.JointsPositionSpeed{}, fmt.Errorf("%w: %T", ErrUnexpectedPayload, reply.Payload)
	}
	return joints, nil
}

// GetStatus reads the device uptime and error counter
func (d *Device) GetStatus(ctx context.Context) (protocol.Status, error) {
	reply, err := d.Do(ctx, protocol.Message{Type: protocol.MsgGetStatus})
	if err != nil {
		return protocol.Status{}, err
	}
	status, ok := reply.Payload.(protocol.Status)
	if !ok {
		return protocol.Status{}, fmt.Errorf("%w: %T", ErrUnexpectedPayload, reply.Payload)
	}
	return status, nil
}

// GetVersion reads the firmware version. When the magic identifier does not
// match, the decoded version is returned along with an error wrapping
// protocol.ErrInvalidMagic.
func (d *Device) GetVersion(ctx context.Context) (protocol.Version, error) {
	reply, err := d.Do(ctx, protocol.Message{Type: protocol.MsgGetVersion})
	if err != nil {
		return protocol.Version{}, err
	}
	version, ok := reply.Payload.(protocol.Version)
	if !ok {
		return protocol.Version{}, fmt.Errorf("%w: %T", ErrUnexpectedPayload, reply.Payload)
	}
	if err := version.Validate(); err != nil {
		return version, fmt.Errorf("device is not an armlink firmware: %w", err)
	}
	return version, nil
}
