//go:build !windows

package thermal

func cpuTemperature() (float64, error) {
	return 0, ErrUnavailable
}
