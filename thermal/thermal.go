// Package thermal reads the CPU temperature for the monitor display.
package thermal

import "errors"

var ErrUnavailable = errors.New("thermal: no temperature source available")

type Collector struct{}

func New() *Collector {
	return &Collector{}
}

// CPUTemperature returns the hottest thermal zone in degrees Celsius.
func (c *Collector) CPUTemperature() (float64, error) {
	return cpuTemperature()
}
