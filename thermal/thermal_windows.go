//go:build windows

package thermal

import (
	"fmt"

	"github.com/yusufpapurcu/wmi"
)

// thermalZoneTemperature maps MSAcpi_ThermalZoneTemperature instances; the
// class lives in the root\wmi namespace, not the default root\cimv2.
type thermalZoneTemperature struct {
	CurrentTemperature uint32
}

func cpuTemperature() (float64, error) {
	var zones []thermalZoneTemperature
	query := "SELECT CurrentTemperature FROM MSAcpi_ThermalZoneTemperature"

	err := wmi.QueryNamespace(query, &zones, `root\wmi`)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(zones) == 0 {
		return 0, ErrUnavailable
	}

	var hottest uint32
	for _, zone := range zones {
		if zone.CurrentTemperature > hottest {
			hottest = zone.CurrentTemperature
		}
	}

	// WMI reports tenths of Kelvin.
	return float64(hottest)/10 - 273.15, nil
}
