package yogafanctl

import (
	"sync/atomic"
	"time"

	"yogafanctl/ec"
)

// Gateway is a privileged channel to the EC's I/O ports. Open and Close
// bracket one transient driver session; Close must be safe to call multiple
// times and on a never-opened gateway.
type Gateway interface {
	ec.PortBus
	Open() error
	Close() error
}

// Thermal reports the CPU package temperature for the monitor display.
type Thermal interface {
	CPUTemperature() (float64, error)
}

// Status is one monitor sample.
type Status struct {
	Fan1    int
	Fan2    int
	CPUTemp float64
	HasTemp bool
	At      time.Time
}

// SetResult reports the outcome of a SetFans call. Applied values are the
// clamped targets that actually reached the mailbox.
type SetResult struct {
	Fan1     bool
	Fan2     bool
	Applied1 int
	Applied2 int
}

// State holds the process-wide advisory flags shared between the controller,
// its background loops and the CLI. The flags are advisory, not
// safety-critical, so atomics are enough.
type State struct {
	AutoMode      atomic.Bool
	HoldActive    atomic.Bool
	SafeConfirmed atomic.Bool
}
