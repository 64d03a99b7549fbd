// Command armlink-host talks to an armlink joint controller over a serial
// port, relays it to MQTT, or simulates one for bench testing.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"armlink/host/bridge"
	"armlink/host/config"
	"armlink/host/logging"
	"armlink/host/serial"
)

const (
	// Global flags
	flagPort          = "port"
	flagBaud          = "baud"
	flagTimeoutFactor = "timeoutfactor"
	flagVerbose       = "verbose"
	flagListen        = "listen"
	flagLegacyTag     = "legacy-tag"
	flagLogLevel      = "log-level"

	// Bridge flags
	flagBroker      = "broker"
	flagClientID    = "client-id"
	flagUsername    = "username"
	flagPassword    = "password"
	flagTopicPrefix = "topic-prefix"
	flagInterval    = "interval"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load %s: %v\n", config.DefaultEnvFile, err)
		os.Exit(1)
	}

	h := &host{}
	app := &cli.App{
		Name:  "armlink-host",
		Usage: "control an armlink joint controller over serial",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagPort,
				Aliases: []string{"p"},
				Value:   serial.DefaultDevice,
				Usage:   "serial device `PATH`",
				EnvVars: []string{config.EnvPort},
			},
			&cli.IntFlag{
				Name:    flagBaud,
				Aliases: []string{"b"},
				Value:   serial.DefaultBaud,
				Usage:   "baud rate",
				EnvVars: []string{config.EnvBaud},
			},
			&cli.Float64Flag{
				Name:    flagTimeoutFactor,
				Aliases: []string{"t"},
				Value:   serial.DefaultTimeoutFactor,
				Usage:   "multiple of one frame's transfer time to wait before dropping a partial frame",
				EnvVars: []string{config.EnvTimeoutFactor},
			},
			&cli.BoolFlag{
				Name:    flagVerbose,
				Aliases: []string{"v"},
				Usage:   "hex dump every frame sent and received",
			},
			&cli.BoolFlag{
				Name:    flagListen,
				Aliases: []string{"l"},
				Usage:   "keep printing received messages until interrupted",
			},
			&cli.BoolFlag{
				Name:    flagLegacyTag,
				Usage:   "use a 2-byte message tag",
				EnvVars: []string{config.EnvLegacyTag},
			},
			&cli.StringFlag{
				Name:    flagLogLevel,
				Value:   "info",
				Usage:   "log `LEVEL` (debug, info, warn, error)",
				EnvVars: []string{config.EnvLogLevel},
			},
		},
		Before: h.setup,
		After:  h.teardown,
		Commands: append(messageCommands(h),
			&cli.Command{
				Name:  "bridge",
				Usage: "relay the device to an MQTT broker",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    flagBroker,
						Value:   bridge.DefaultBroker,
						Usage:   "broker `URL`",
						EnvVars: []string{config.EnvMQTTBroker},
					},
					&cli.StringFlag{
						Name:    flagClientID,
						Value:   bridge.DefaultClientID,
						Usage:   "MQTT client id",
						EnvVars: []string{config.EnvMQTTClientID},
					},
					&cli.StringFlag{
						Name:    flagUsername,
						EnvVars: []string{config.EnvMQTTUsername},
					},
					&cli.StringFlag{
						Name:    flagPassword,
						EnvVars: []string{config.EnvMQTTPassword},
					},
					&cli.StringFlag{
						Name:    flagTopicPrefix,
						Value:   bridge.DefaultTopicPrefix,
						Usage:   "prefix for every published and subscribed topic",
						EnvVars: []string{config.EnvTopicPrefix},
					},
					&cli.DurationFlag{
						Name:    flagInterval,
						Value:   bridge.DefaultPollInterval,
						Usage:   "status and joint poll interval",
						EnvVars: []string{config.EnvPollInterval},
					},
				},
				Action: h.runBridge,
			},
			&cli.Command{
				Name:   "simulate",
				Usage:  "answer as the firmware would on the serial port",
				Action: h.runSimulate,
			},
		),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type host struct {
	logger *zap.Logger
}

func (h *host) setup(c *cli.Context) error {
	logger, err := logging.New(c.String(flagLogLevel))
	if err != nil {
		return err
	}
	h.logger = logger
	return nil
}

func (h *host) teardown(*cli.Context) error {
	if h.logger != nil {
		// Sync on stderr reports EINVAL on some terminals
		_ = h.logger.Sync()
	}
	return nil
}
