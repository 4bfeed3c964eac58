// Package ec implements the mailbox transaction protocol of the Yoga Pro 9i
// embedded controller over two legacy I/O ports.
package ec

import (
	"errors"
	"fmt"
	"time"

	"github.com/mdouchement/logger"
)

var ErrUnexpectedResult = errors.New("unexpected result byte")

// Wait stages reported by TimeoutError.
const (
	StageInputEmpty  = "input buffer empty (IBE)"
	StageOutputEmpty = "output buffer empty (OBE)"
	StageOutputFull  = "output buffer full (OBF)"
)

type TimeoutError struct {
	Stage string
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("ec: timeout waiting for %s", e.Stage)
}

// PortBus is the byte-level port access the mailbox runs on. It is satisfied
// by a winring session as well as by test doubles.
type PortBus interface {
	ReadPort(port uint16) (byte, error)
	WritePort(port uint16, value byte) error
}

type Fan uint8

func (f Fan) String() string {
	return fmt.Sprintf("fan%d", uint8(f))
}

func (f Fan) setSubcommand() byte {
	if f == Fan2 {
		return SubSetFan2
	}
	return SubSetFan1
}

func (f Fan) querySelector() byte {
	if f == Fan2 {
		return QueryReadFan2
	}
	return QueryReadFan1
}

type Mailbox struct {
	bus   PortBus
	log   logger.Logger
	delay time.Duration
}

func NewMailbox(bus PortBus) *Mailbox {
	return &Mailbox{
		bus:   bus,
		delay: PollDelay,
	}
}

func (m *Mailbox) SetLogger(l logger.Logger) {
	m.log = l
}

// Transact performs one command/subcommand/argument handshake and returns the
// result byte. The EC has no per-client isolation so callers must not
// interleave transactions; the controller's session lock guarantees that.
func (m *Mailbox) Transact(cmd, sub, arg byte) (byte, error) {
	if err := m.waitInputEmpty(); err != nil {
		return 0, err
	}
	if err := m.drainOutput(); err != nil {
		return 0, err
	}

	if err := m.bus.WritePort(PortCmd, cmd); err != nil {
		return 0, err
	}
	if err := m.waitInputEmpty(); err != nil {
		return 0, err
	}

	if err := m.bus.WritePort(PortData, sub); err != nil {
		return 0, err
	}
	if err := m.waitInputEmpty(); err != nil {
		return 0, err
	}

	if err := m.bus.WritePort(PortData, arg); err != nil {
		return 0, err
	}
	if err := m.waitInputEmpty(); err != nil {
		return 0, err
	}

	if err := m.waitOutputFull(); err != nil {
		return 0, err
	}

	result, err := m.bus.ReadPort(PortData)
	if err != nil {
		return 0, err
	}

	if m.log != nil {
		m.log.Debugf("ec: %02X %02X %02X -> %02X", cmd, sub, arg, result)
	}
	return result, nil
}

// SetFan drives one fan channel to a raw percentage. Callers are expected to
// have applied the pulsing clamp already; only the hard [0,100] bound is
// enforced here.
func (m *Mailbox) SetFan(f Fan, percent int) error {
	percent = min(max(percent, 0), 100)

	result, err := m.Transact(CmdFan, f.setSubcommand(), byte(percent))
	if err != nil {
		return fmt.Errorf("set %s: %w", f, err)
	}
	if result != SuccessCode {
		return fmt.Errorf("set %s: %w: 0x%02X", f, ErrUnexpectedResult, result)
	}
	return nil
}

// ReadFan returns the current speed of one fan channel in percent. Any result
// byte is a valid reading, there is no failure code.
func (m *Mailbox) ReadFan(f Fan) (int, error) {
	result, err := m.Transact(CmdFan, SubQuery, f.querySelector())
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", f, err)
	}
	return int(result), nil
}

// RestoreAuto hands fan control back to the EC firmware.
func (m *Mailbox) RestoreAuto() error {
	result, err := m.Transact(CmdFan, SubQuery, QueryAutoMode)
	if err != nil {
		return fmt.Errorf("restore auto: %w", err)
	}
	if result != SuccessCode {
		return fmt.Errorf("restore auto: %w: 0x%02X", ErrUnexpectedResult, result)
	}
	return nil
}

func (m *Mailbox) waitInputEmpty() error {
	for i := 0; i < PollLimit; i++ {
		status, err := m.bus.ReadPort(PortCmd)
		if err != nil {
			return err
		}
		if status&StatusInputFull == 0 {
			return nil
		}
		time.Sleep(m.delay)
	}
	return TimeoutError{Stage: StageInputEmpty}
}

// drainOutput waits for the output buffer to empty, reading away any stale
// byte a previous aborted transaction may have left pending.
func (m *Mailbox) drainOutput() error {
	for i := 0; i < PollLimit; i++ {
		status, err := m.bus.ReadPort(PortCmd)
		if err != nil {
			return err
		}
		if status&StatusOutputFull == 0 {
			return nil
		}

		if _, err := m.bus.ReadPort(PortData); err != nil {
			return err
		}
		time.Sleep(m.delay)
	}
	return TimeoutError{Stage: StageOutputEmpty}
}

func (m *Mailbox) waitOutputFull() error {
	for i := 0; i < PollLimit; i++ {
		status, err := m.bus.ReadPort(PortCmd)
		if err != nil {
			return err
		}
		if status&StatusOutputFull != 0 {
			return nil
		}
		time.Sleep(m.delay)
	}
	return TimeoutError{Stage: StageOutputFull}
}
