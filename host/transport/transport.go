// Package transport moves fixed-size frames between the host and a device
// over a serial port.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"armlink/host/logging"
	"armlink/protocol"
)

// ErrClosed is returned by Send and Receive once the transport is closed
var ErrClosed = errors.New("transport closed")

// Default sizes
const (
	DefaultQueueSize = 16
	readChunkSize    = 256
	inputBufferSize  = 2 * readChunkSize
)

// Direction says which way a frame passed through the transport
type Direction int

const (
	Sent Direction = iota
	Received
)

func (d Direction) String() string {
	if d == Sent {
		return "sent"
	}
	return "received"
}

// FrameHook observes every raw frame sent or received
type FrameHook func(dir Direction, frame []byte)

// readTimeouter is implemented by ports whose reads give up after a while.
// For those ports io.EOF with no data means a timeout rather than the end of
// the stream.
type readTimeouter interface {
	ReadTimeout() time.Duration
}

// Option configures a Transport
type Option func(*Transport)

// WithLayout selects the tag layout (protocol.DefaultLayout otherwise)
func WithLayout(layout protocol.Layout) Option {
	return func(t *Transport) { t.layout = layout }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(t *Transport) { t.logger = logging.OrNop(logger) }
}

// WithQueueSize sets how many received messages are buffered before the
// oldest is dropped
func WithQueueSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.queueSize = n
		}
	}
}

// WithFrameHook installs a hook called for every raw frame
func WithFrameHook(hook FrameHook) Option {
	return func(t *Transport) { t.hook = hook }
}

// Stats are counters kept by a Transport
type Stats struct {
	FramesSent     uint64
	FramesReceived uint64
	DecodeErrors   uint64
	DiscardedBytes uint64 // partial frames dropped on read timeout
	Dropped        uint64 // messages dropped because the queue was full
}

// Transport is the host side of the link. A background goroutine reads the
// port, reassembles frames and queues decoded messages for Receive.
type Transport struct {
	port      io.ReadWriteCloser
	layout    protocol.Layout
	logger    *zap.Logger
	queueSize int
	hook      FrameHook

	eofIsTimeout bool

	// Reassembly buffer, owned by the read loop
	input     *protocol.FifoBuffer
	readMutex sync.Mutex

	responseChan chan protocol.Message

	writeMutex sync.Mutex

	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	decodeErrors   atomic.Uint64
	discardedBytes atomic.Uint64
	dropped        atomic.Uint64

	readErr   error // set by the read loop before doneChan closes
	closeOnce sync.Once
	closeErr  error
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// New creates a transport on port and starts its read loop
func New(port io.ReadWriteCloser, opts ...Option) *Transport {
	t := &Transport{
		port:      port,
		layout:    protocol.DefaultLayout,
		logger:    zap.NewNop(),
		queueSize: DefaultQueueSize,
		input:     protocol.NewFifoBuffer(inputBufferSize),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.responseChan = make(chan protocol.Message, t.queueSize)
	if rt, ok := port.(readTimeouter); ok && rt.ReadTimeout() > 0 {
		t.eofIsTimeout = true
	}

	go t.readLoop()

	return t
}

// Layout returns the tag layout in use
func (t *Transport) Layout() protocol.Layout {
	return t.layout
}

// Send encodes msg and writes it as one frame
func (t *Transport) Send(ctx context.Context, msg protocol.Message) error {
	frame, err := t.layout.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case <-t.stopChan:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.writeFrame(frame); err != nil {
		return fmt.Errorf("failed to write %s: %w", msg.Type, err)
	}

	t.logger.Debug("sent message", zap.Stringer("msg", msg))
	return nil
}

func (t *Transport) writeFrame(frame []byte) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	n, err := t.port.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(frame))
	}

	t.framesSent.Add(1)
	if t.hook != nil {
		t.hook(Sent, frame)
	}
	return nil
}

// Receive returns the next decoded message
func (t *Transport) Receive(ctx context.Context) (protocol.Message, error) {
	// Hand out anything already queued before reporting closure
	select {
	case msg := <-t.responseChan:
		return msg, nil
	default:
	}

	select {
	case msg := <-t.responseChan:
		return msg, nil
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	case <-t.doneChan:
		return protocol.Message{}, ErrClosed
	}
}

// Stats returns a snapshot of the transport counters
func (t *Transport) Stats() Stats {
	return Stats{
		FramesSent:     t.framesSent.Load(),
		FramesReceived: t.framesReceived.Load(),
		DecodeErrors:   t.decodeErrors.Load(),
		DiscardedBytes: t.discardedBytes.Load(),
		Dropped:        t.dropped.Load(),
	}
}

// Reset drops and returns the messages queued so far. A partially received
// frame is kept; it is dropped on the next read timeout instead.
func (t *Transport) Reset() []protocol.Message {
	var stale []protocol.Message
	for {
		select {
		case msg := <-t.responseChan:
			stale = append(stale, msg)
		default:
			return stale
		}
	}
}

// Close stops the transport and closes the port
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.stopChan)
		err := t.port.Close()
		<-t.doneChan // Wait for read loop to finish
		t.closeErr = multierr.Combine(err, t.readErr)
	})
	return t.closeErr
}

// readLoop continuously reads from the port and processes frames
func (t *Transport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, readChunkSize)

	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.processFrames(buffer[:n])
		}

		switch {
		case err == nil && n > 0:
		case err == nil, t.eofIsTimeout && errors.Is(err, io.EOF):
			// A read that returns nothing is a read timeout; tarm/serial
			// reports it as io.EOF. Whatever partial frame is buffered will
			// never be completed.
			t.discardPartial()
			if err != nil {
				time.Sleep(time.Millisecond)
			}
		case errors.Is(err, io.EOF):
			t.logger.Info("port reached end of stream")
			return
		case isClosed(err):
			select {
			case <-t.stopChan:
			default:
				t.logger.Warn("serial port closed", zap.Error(err))
				t.readErr = err
			}
			return
		default:
			t.logger.Warn("serial read failed", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// processFrames buffers data and dispatches every complete frame
func (t *Transport) processFrames(data []byte) {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	for len(data) > 0 {
		written := t.input.Write(data)
		data = data[written:]

		var frame [protocol.MessageLength]byte
		for t.input.ReadFrame(&frame) {
			t.dispatchFrame(frame[:])
		}
	}
}

func (t *Transport) dispatchFrame(frame []byte) {
	if t.hook != nil {
		t.hook(Received, frame)
	}

	msg, err := t.layout.Decode(frame)
	if err != nil {
		t.decodeErrors.Add(1)
		t.logger.Warn("dropping undecodable frame",
			zap.String("frame", protocol.HexDump(frame)), zap.Error(err))
		return
	}

	t.framesReceived.Add(1)
	t.logger.Debug("received message", zap.Stringer("msg", msg))

	select {
	case t.responseChan <- msg:
	default:
		// Queue full, drop oldest
		select {
		case <-t.responseChan:
			t.dropped.Add(1)
		default:
		}
		select {
		case t.responseChan <- msg:
		default:
			t.dropped.Add(1)
		}
	}
}

func (t *Transport) discardPartial() {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	if n := t.input.Available(); n > 0 {
		t.input.Reset()
		t.discardedBytes.Add(uint64(n))
		t.logger.Warn("received incomplete packet, discarded", zap.Int("bytes", n))
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed)
}
