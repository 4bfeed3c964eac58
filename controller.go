// Package yogafanctl drives the cooling fans of the Yoga Pro 9i through the
// EC mailbox, one transient kernel-driver session per operation.
package yogafanctl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mdouchement/logger"

	"yogafanctl/ec"
)

type Controller struct {
	mu       sync.Mutex
	cfg      Config
	gateway  func() Gateway
	teardown func() error
	thermal  Thermal
	state    State
	log      logger.Logger
}

// New builds a controller around a gateway factory; every operation gets its
// own gateway so the driver service never outlives a call.
func New(cfg Config, gateway func() Gateway) *Controller {
	c := &Controller{
		cfg:     cfg,
		gateway: gateway,
	}
	c.state.AutoMode.Store(true)
	return c
}

func (c *Controller) SetLogger(l logger.Logger) {
	c.log = l
}

// SetThermal wires an optional CPU temperature source for monitor samples.
func (c *Controller) SetThermal(t Thermal) {
	c.thermal = t
}

// SetTeardown wires the out-of-session service cleanup used by ForceTeardown.
func (c *Controller) SetTeardown(fn func() error) {
	c.teardown = fn
}

func (c *Controller) State() *State {
	return &c.state
}

func (c *Controller) Config() Config {
	return c.cfg
}

// session runs fn against a fresh mailbox inside one exclusive gateway
// session. The gateway is torn down on every exit path; its cleanup errors
// are swallowed, fn's and Open's errors propagate untouched.
func (c *Controller) session(fn func(*ec.Mailbox) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.gateway()
	defer g.Close()

	if err := g.Open(); err != nil {
		return err
	}

	mb := ec.NewMailbox(g)
	if c.log != nil {
		mb.SetLogger(c.log)
	}
	return fn(mb)
}

// ReadFans reads both fan speeds in a single session.
func (c *Controller) ReadFans() (f1, f2 int, err error) {
	err = c.session(func(mb *ec.Mailbox) error {
		var err error
		if f1, err = mb.ReadFan(ec.Fan1); err != nil {
			return err
		}
		f2, err = mb.ReadFan(ec.Fan2)
		return err
	})
	return f1, f2, err
}

// SetFans clamps both targets and drives both channels in a single session.
// A rejected set (EC answered but not with the success byte) is reported in
// the result flags; transport and driver failures abort and propagate.
func (c *Controller) SetFans(f1, f2 int) (SetResult, error) {
	r := SetResult{
		Applied1: ClampSpeed(f1),
		Applied2: ClampSpeed(f2),
	}

	err := c.session(func(mb *ec.Mailbox) error {
		err := mb.SetFan(ec.Fan1, r.Applied1)
		switch {
		case err == nil:
			r.Fan1 = true
		case !errors.Is(err, ec.ErrUnexpectedResult):
			return err
		}

		err = mb.SetFan(ec.Fan2, r.Applied2)
		switch {
		case err == nil:
			r.Fan2 = true
		case !errors.Is(err, ec.ErrUnexpectedResult):
			return err
		}
		return nil
	})
	if err == nil {
		c.state.AutoMode.Store(false)
	}
	return r, err
}

// RestoreAuto hands control back to the EC firmware and resets the
// above-safe-max confirmation for the next interactive run.
func (c *Controller) RestoreAuto() error {
	err := c.session(func(mb *ec.Mailbox) error {
		return mb.RestoreAuto()
	})
	if err == nil {
		c.state.AutoMode.Store(true)
		c.state.SafeConfirmed.Store(false)
	}
	return err
}

// ExceedsSafeMax reports whether either clamped target is above the
// configured safe maximum. Advisory only; the controller never blocks a
// write, the calling layer decides whether to ask for confirmation.
func (c *Controller) ExceedsSafeMax(f1, f2 int) bool {
	return ClampSpeed(f1) > c.cfg.SafeMax || ClampSpeed(f2) > c.cfg.SafeMax
}

// Hold re-sends the given targets every hold interval until ctx is
// cancelled, counteracting the EC's tendency to fall back to automatic
// control. Per-cycle errors are logged and discarded so a single failed
// session does not kill the loop; a transaction in flight always completes
// before cancellation takes effect.
func (c *Controller) Hold(ctx context.Context, f1, f2 int) {
	c.state.HoldActive.Store(true)
	defer c.state.HoldActive.Store(false)

	ticker := time.NewTicker(c.cfg.HoldInterval.Duration)
	defer ticker.Stop()

	for {
		if _, err := c.SetFans(f1, f2); err != nil && c.log != nil {
			c.log.WithError(err).Error("Could not re-send fan targets")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// Monitor emits one Status per monitor interval until ctx is cancelled. The
// channel is closed on exit. Failed polls are logged and skipped.
func (c *Controller) Monitor(ctx context.Context) <-chan Status {
	ch := make(chan Status, 1)

	go func() {
		defer close(ch)

		ticker := time.NewTicker(c.cfg.MonitorInterval.Duration)
		defer ticker.Stop()

		for {
			f1, f2, err := c.ReadFans()
			if err != nil {
				if c.log != nil {
					c.log.WithError(err).Error("Could not read fan speeds")
				}
			} else {
				s := Status{Fan1: f1, Fan2: f2, At: time.Now()}
				if c.thermal != nil {
					if t, err := c.thermal.CPUTemperature(); err == nil {
						s.CPUTemp = t
						s.HasTemp = true
					}
				}

				select {
				case ch <- s:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// ForceRestoreAuto is the synchronous entry point for suspend/shutdown
// collaborators: best effort, safe to call with no session open.
func (c *Controller) ForceRestoreAuto() error {
	err := c.RestoreAuto()
	if err != nil && c.log != nil {
		c.log.WithError(err).Warn("Could not restore automatic fan control")
	}
	return err
}

// ForceTeardown removes any driver service registration that might still
// exist. It waits for an in-flight session to finish its own teardown first.
func (c *Controller) ForceTeardown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.teardown == nil {
		return nil
	}
	return c.teardown()
}
