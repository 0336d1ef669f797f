// Package driver runs the periodic maintenance loop: anything implementing
// Manager gets a Tick on a fixed cadence. The town registry hangs its post
// expiry sweep off this.
package driver

import (
	"context"
	"time"
)

const (
	DefaultTickLength = time.Minute
)

type Manager interface {
	Tick(context.Context) error
}

type TownDriver struct {
	tickLength time.Duration
	managers   []Manager
}

func NewTownDriver(managers []Manager, opts ...TownDriverOpt) *TownDriver {
	d := &TownDriver{
		tickLength: DefaultTickLength,
		managers:   managers,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *TownDriver) Start(ctx context.Context) error {
	ticker := time.NewTicker(d.tickLength)
	defer ticker.Stop()

	// Run one pass immediately so a restarted process does not wait a full
	// interval before sweeping.
	if err := d.Tick(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (d *TownDriver) Tick(ctx context.Context) error {
	for _, m := range d.managers {
		if err := m.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}
