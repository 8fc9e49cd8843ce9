// Package board connects the host engine to a peripheral board, real or simulated.
package board

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"aiobridge/aio"
	"aiobridge/host/config"
	"aiobridge/host/serial"
	"aiobridge/ipm"
	"aiobridge/remote"
)

// settleDelay gives a freshly opened board time to start listening.
const settleDelay = 100 * time.Millisecond

// Board is a live connection: a channel, the engine on top of it and, when simulated,
// the responder playing the peripheral core.
type Board struct {
	Engine *aio.Engine

	// Responder and Sampler are set only for the simulated transport.
	Responder *remote.Responder
	Sampler   *remote.StaticSampler

	channels []ipm.Channel
	handles  []*aio.PinHandle
	cfg      *config.Config
	logger   *zap.SugaredLogger
}

// Connect opens the transport named by cfg and starts the engine.
func Connect(cfg *config.Config, logger *zap.SugaredLogger) (*Board, error) {
	b := &Board{cfg: cfg, logger: logger}

	switch cfg.Transport {
	case config.TransportSerial:
		port, err := serial.Open(cfg.SerialPortConfig())
		if err != nil {
			return nil, errors.Wrap(err, "failed to open serial port")
		}
		if err := port.Flush(); err != nil {
			logger.Debugw("flush failed", "error", err)
		}
		host := ipm.NewStreamChannel(port, cfg.QueueSize, logger.Named("serial"))
		b.channels = append(b.channels, host)
		b.Engine = aio.NewEngine(host, logger.Named("aio"), cfg.EngineOptions())

		// the board may have just been reset by opening the port
		time.Sleep(settleDelay)

	case config.TransportSimulated:
		hostPort, boardPort := serial.Pair()
		host := ipm.NewStreamChannel(hostPort, cfg.QueueSize, logger.Named("host"))
		peripheral := ipm.NewStreamChannel(boardPort, cfg.QueueSize, logger.Named("board"))
		b.channels = append(b.channels, host, peripheral)

		b.Sampler = remote.NewStaticSampler(cfg.SimulatedPins())
		b.Responder = remote.NewResponder(peripheral, b.Sampler, logger.Named("remote"))
		b.Engine = aio.NewEngine(host, logger.Named("aio"), cfg.EngineOptions())

	default:
		return nil, errors.Errorf("unknown transport %q", cfg.Transport)
	}
	return b, nil
}

// OpenConfigured opens every pin listed in the config, in order.
func (b *Board) OpenConfigured(ctx context.Context) ([]*aio.PinHandle, error) {
	handles := make([]*aio.PinHandle, 0, len(b.cfg.Pins))
	for idx, pc := range b.cfg.Pins {
		h, err := b.Engine.Open(ctx, pc.OpenOptions())
		if err != nil {
			return handles, errors.Wrapf(err, "open pins.%d (%s)", idx, pc.Pin)
		}
		b.logger.Infow("opened pin", "pin", h.Pin, "name", h.Name, "device", h.Device)
		handles = append(handles, h)
	}
	b.handles = append(b.handles, handles...)
	return handles, nil
}

// Close releases opened handles and closes every channel.
func (b *Board) Close() error {
	for _, h := range b.handles {
		h.Release()
	}
	b.handles = nil
	return ipm.CloseAll(b.channels...)
}

