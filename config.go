package yogafanctl

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Debug           bool           `yaml:"debug"`
	SafeMax         int            `yaml:"safe_max"`
	HoldInterval    Duration       `yaml:"hold_interval"`
	MonitorInterval Duration       `yaml:"monitor_interval"`
	DriverPath      string         `yaml:"driver_path"`
	Fan1            int            `yaml:"fan1"`
	Fan2            int            `yaml:"fan2"`
	Presets         map[string]int `yaml:"presets"`
}

// DefaultConfig mirrors the EC's normal operating envelope: 48% is the
// highest duty the firmware drives on its own.
func DefaultConfig() Config {
	return Config{
		SafeMax:         48,
		HoldInterval:    Duration{3 * time.Second},
		MonitorInterval: Duration{2 * time.Second},
		Fan1:            30,
		Fan2:            30,
		Presets: map[string]int{
			"off":      0,
			"min":      18,
			"med":      22,
			"med-high": 30,
			"high":     48,
		},
	}
}

// Load reads the YAML config at path and validates it. A missing file is not
// an error, the defaults apply.
func Load(path string) (Config, error) {
	c := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, err
	}
	defer f.Close()

	codec := yaml.NewDecoder(f)
	err = codec.Decode(&c)
	if err != nil {
		return c, err
	}

	//

	if c.SafeMax < 0 || c.SafeMax > 100 {
		return c, fmt.Errorf("safe_max: %d: must be in range [0,100]", c.SafeMax)
	}
	if c.HoldInterval.Duration <= 0 {
		return c, fmt.Errorf("hold_interval: %s: must be positive", c.HoldInterval)
	}
	if c.MonitorInterval.Duration <= 0 {
		return c, fmt.Errorf("monitor_interval: %s: must be positive", c.MonitorInterval)
	}
	if c.Fan1 < 0 || c.Fan1 > 100 {
		return c, fmt.Errorf("fan1: %d: must be in range [0,100]", c.Fan1)
	}
	if c.Fan2 < 0 || c.Fan2 > 100 {
		return c, fmt.Errorf("fan2: %d: must be in range [0,100]", c.Fan2)
	}

	for name, speed := range c.Presets {
		if name == "" {
			return c, errors.New("presets: empty name")
		}
		if speed < 0 || speed > 100 {
			return c, fmt.Errorf("presets: %s: %d: must be in range [0,100]", name, speed)
		}
	}

	return c, nil
}
