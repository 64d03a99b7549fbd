package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"armlink/core"
	"armlink/host/bridge"
	"armlink/host/device"
	"armlink/host/serial"
	"armlink/host/transport"
	"armlink/protocol"
)

// messageCommands returns one subcommand per message type
func messageCommands(h *host) []*cli.Command {
	var cmds []*cli.Command
	for _, t := range protocol.MessageTypes() {
		cmd := &cli.Command{
			Name:   t.String(),
			Action: h.messageAction(t),
		}
		switch t {
		case protocol.MsgNop:
			cmd.Usage = "send a no-op message"
		case protocol.MsgSetJointsPositionSpeed:
			cmd.Usage = "set joint position and speed targets"
			cmd.ArgsUsage = `'{"joints":[{"position":100,"speed":10},...]}'`
		default:
			cmd.Usage = "request " + protocol.PayloadField(t) + " and print the reply"
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

func layoutFor(c *cli.Context) protocol.Layout {
	if c.Bool(flagLegacyTag) {
		return protocol.LegacyLayout
	}
	return protocol.DefaultLayout
}

func serialConfig(c *cli.Context, readTimeout time.Duration) *serial.Config {
	return &serial.Config{
		Device:      c.String(flagPort),
		Baud:        c.Int(flagBaud),
		ReadTimeout: readTimeout,
	}
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func (h *host) connect(c *cli.Context) (*device.Device, error) {
	timeout := serial.PacketReadTimeout(c.Int(flagBaud), c.Float64(flagTimeoutFactor))
	if timeout == 0 {
		return nil, fmt.Errorf("invalid baud %d or timeout factor %g", c.Int(flagBaud), c.Float64(flagTimeoutFactor))
	}

	tOpts := []transport.Option{transport.WithLayout(layoutFor(c))}
	if c.Bool(flagVerbose) {
		tOpts = append(tOpts, transport.WithFrameHook(func(dir transport.Direction, frame []byte) {
			fmt.Fprintf(os.Stderr, "%-8s %s\n", dir, protocol.HexDump(frame))
		}))
	}

	h.logger.Debug("connecting",
		zap.String("port", c.String(flagPort)),
		zap.Int("baud", c.Int(flagBaud)),
		zap.Duration("read_timeout", timeout))

	return device.Connect(serialConfig(c, timeout),
		device.WithLogger(h.logger),
		device.WithTransportOptions(tOpts...))
}

func (h *host) messageAction(t protocol.MessageType) cli.ActionFunc {
	return func(c *cli.Context) (err error) {
		ctx, cancel := signalContext(c)
		defer cancel()

		msg := protocol.Message{Type: t}
		if t == protocol.MsgSetJointsPositionSpeed {
			if c.NArg() != 1 {
				return fmt.Errorf("%s takes exactly one JSON argument", t)
			}
			if msg.Payload, err = protocol.UnmarshalPayload(t, []byte(c.Args().First())); err != nil {
				return err
			}
		}

		dev, err := h.connect(c)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, dev.Close())
		}()

		if err := h.exchange(ctx, dev, msg); err != nil {
			return err
		}
		if c.Bool(flagListen) {
			return listen(ctx, dev)
		}
		return nil
	}
}

// exchange sends msg and prints the reply for requests that have one
func (h *host) exchange(ctx context.Context, dev *device.Device, msg protocol.Message) error {
	switch msg.Type {
	case protocol.MsgNop, protocol.MsgSetJointsPositionSpeed:
		if err := dev.Send(ctx, msg); err != nil {
			return err
		}
		fmt.Println("sent", msg)
		return nil

	case protocol.MsgGetVersion:
		version, err := dev.GetVersion(ctx)
		if err != nil && !errors.Is(err, protocol.ErrInvalidMagic) {
			return err
		}
		fmt.Println(protocol.Message{Type: msg.Type, Payload: version})
		if err != nil {
			return err
		}
		fmt.Println("firmware version", version)
		return nil

	default:
		reply, err := dev.Do(ctx, msg)
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	}
}

// listen prints every message from the device until ctx is cancelled
func listen(ctx context.Context, dev *device.Device) error {
	for {
		msg, err := dev.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Println(msg)
	}
}

func (h *host) runBridge(c *cli.Context) (err error) {
	ctx, cancel := signalContext(c)
	defer cancel()

	cfg := bridge.Config{
		Broker:       c.String(flagBroker),
		ClientID:     c.String(flagClientID),
		Username:     c.String(flagUsername),
		Password:     c.String(flagPassword),
		TopicPrefix:  c.String(flagTopicPrefix),
		PollInterval: c.Duration(flagInterval),
		QoS:          bridge.DefaultQoS,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dev, err := h.connect(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dev.Close())
	}()

	b, err := bridge.New(cfg, dev, bridge.WithLogger(h.logger))
	if err != nil {
		return err
	}
	return b.Run(ctx)
}

func (h *host) runSimulate(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	// Blocking reads: the firmware loop has no use for timeouts
	port, err := serial.Open(serialConfig(c, 0))
	if err != nil {
		return err
	}

	fw := core.NewFirmware(
		core.WithLayout(layoutFor(c)),
		core.WithClock(core.MillisSince(time.Now())),
	)

	// Closing the port is the only way to interrupt a blocked read
	closed := make(chan error, 1)
	go func() {
		<-ctx.Done()
		closed <- port.Close()
	}()

	h.logger.Info("simulating firmware", zap.String("port", c.String(flagPort)))
	err = fw.Serve(ctx, port)
	if ctx.Err() != nil {
		err = nil
	}
	cancel()

	h.logger.Info("simulation stopped", zap.Uint16("transmission_errors", fw.TransmissionErrors()))
	return multierr.Append(err, <-closed)
}
