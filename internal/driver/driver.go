package driver

import (
	"context"
	"log/slog"
	"time"

	"github.com/pixil98/go-errors"
)

const (
	DefaultTickLength = time.Second * 5
)

// Ticker is periodic housekeeping, e.g. reaping idle instances or
// refreshing gauges.
type Ticker interface {
	Tick(context.Context) error
}

// Driver runs every Ticker on a fixed interval until its context ends. A
// failed tick is logged and the next one runs as scheduled.
type Driver struct {
	tickLength time.Duration
	tickers    []Ticker
}

func NewDriver(tickers []Ticker, opts ...DriverOpt) *Driver {
	d := &Driver{
		tickLength: DefaultTickLength,
		tickers:    tickers,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Driver) Start(ctx context.Context) error {
	ticker := time.NewTicker(d.tickLength)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.Tick(ctx); err != nil {
				slog.WarnContext(ctx, "housekeeping tick", "error", err)
			}
		}
	}
}

// Tick runs every ticker once. All tickers run even when one fails.
func (d *Driver) Tick(ctx context.Context) error {
	el := errors.NewErrorList()
	for _, t := range d.tickers {
		el.Add(t.Tick(ctx))
	}
	return el.Err()
}
