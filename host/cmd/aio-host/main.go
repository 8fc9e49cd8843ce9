// Package main is aio-host, a command line client for analog pins on a peripheral board.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"aiobridge/aio"
	"aiobridge/host/board"
	"aiobridge/host/config"
	"aiobridge/host/publish"
	"aiobridge/logging"
)

const (
	flagConfig   = "config"
	flagSimulate = "simulate"
	flagDevice   = "device"
	flagDebug    = "debug"
	flagCount    = "count"
	flagInterval = "interval"
	flagPin      = "pin"
)

func main() {
	var logger *zap.SugaredLogger

	app := &cli.App{
		Name:  "aio-host",
		Usage: "read analog pins owned by a peripheral board",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagSimulate,
				Usage: "use an in-process simulated board",
			},
			&cli.StringFlag{
				Name:  flagDevice,
				Usage: "serial `DEVICE`, overrides the config file",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = logging.NewDebugLogger("aio-host")
			} else {
				logger = logging.NewLogger("aio-host")
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				_ = logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "read",
				Usage:     "take blocking readings from one pin",
				ArgsUsage: "PIN",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: flagCount, Value: 1, Usage: "number of readings"},
					&cli.DurationFlag{Name: flagInterval, Value: time.Second, Usage: "time between readings"},
				},
				Action: func(c *cli.Context) error {
					return readAction(c, logger)
				},
			},
			{
				Name:  "watch",
				Usage: "subscribe to pins and print or publish every reading",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: flagPin, Usage: "pin to watch, repeatable; defaults to the configured pins"},
					&cli.DurationFlag{Name: flagInterval, Value: time.Second, Usage: "time between requests"},
				},
				Action: func(c *cli.Context) error {
					return watchAction(c, logger)
				},
			},
			{
				Name:  "shell",
				Usage: "interactive session",
				Action: func(c *cli.Context) error {
					return shellAction(c, logger)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path); err != nil {
			return nil, err
		}
	}
	if device := c.String(flagDevice); device != "" {
		cfg.Transport = config.TransportSerial
		cfg.Serial.Device = device
	}
	if c.Bool(flagSimulate) {
		cfg.Transport = config.TransportSimulated
	}
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func connect(c *cli.Context, logger *zap.SugaredLogger) (*board.Board, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	b, err := board.Connect(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return b, cfg, nil
}

func readAction(c *cli.Context, logger *zap.SugaredLogger) error {
	if c.NArg() != 1 {
		return errors.New("read needs exactly one PIN")
	}
	pin, err := aio.ParsePin(c.Args().First())
	if err != nil {
		return err
	}

	b, _, err := connect(c, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx := c.Context
	h, err := b.Engine.Open(ctx, aio.OpenOptions{Device: aio.Uint32(0), Pin: aio.Uint32(uint32(pin))})
	if err != nil {
		return err
	}

	for i := 0; i < c.Int(flagCount); i++ {
		if i > 0 {
			time.Sleep(c.Duration(flagInterval))
		}
		v, err := h.Read(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s = %g\n", h, v)
	}
	return nil
}

func watchAction(c *cli.Context, logger *zap.SugaredLogger) error {
	b, cfg, err := connect(c, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var handles []*aio.PinHandle
	if pins := c.StringSlice(flagPin); len(pins) > 0 {
		for _, s := range pins {
			pin, err := aio.ParsePin(s)
			if err != nil {
				return err
			}
			h, err := b.Engine.Open(ctx, aio.OpenOptions{Device: aio.Uint32(0), Pin: aio.Uint32(uint32(pin))})
			if err != nil {
				return err
			}
			handles = append(handles, h)
		}
	} else if handles, err = b.OpenConfigured(ctx); err != nil {
		return err
	}
	if len(handles) == 0 {
		return errors.New("no pins to watch")
	}

	var pub publish.Publisher
	if cfg.MQTT != nil {
		rp, err := publish.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			return errors.Wrap(err, "mqtt")
		}
		defer rp.Close()
		pub = rp
	}

	w := &watcher{handles: handles, pub: pub, out: c.App.Writer, logger: logger}
	return w.run(ctx, b.Engine, c.Duration(flagInterval))
}

func shellAction(c *cli.Context, logger *zap.SugaredLogger) error {
	b, _, err := connect(c, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	sh := newShell(b.Engine, c.App.Writer)
	return sh.run(c.Context, os.Stdin)
}
