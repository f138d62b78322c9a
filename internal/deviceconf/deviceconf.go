// Package deviceconf parses the engine-device selector grammar used to pin
// named engines (currently just "whisper") to a CPU or a specific GPU
// device. Grounded on EngineDeviceConfigurations in
// original_source/src/engine_device_conf.hpp, ported to a Go value type
// with explicit errors instead of exceptions.
//
// Grammar: a comma-separated list of "engine[:device]" entries, where
// device is one of:
//   - "cpu"              -> device -1
//   - "gpu" or "gpu#N"   -> device 0 (auto) or N
//   - "gpu:N" / "gpu:*"  -> three-part form, same meaning as "gpu#N"
//   - a bare integer     -> that device number (negative clamps to -1/CPU)
//
// "all"/"any"/"a"/"*" address every known engine at once.
package deviceconf

import (
	"fmt"
	"strconv"
	"strings"
)

// ImplicitOverride controls how an engine entry with no device suffix is
// interpreted.
type ImplicitOverride int

const (
	// ImplicitNotAllowed treats the implicit device number as a hardcoded
	// value: a bare "engine" entry gets it, and any entry with an explicit
	// device setting (two- or three-part form) is rejected.
	ImplicitNotAllowed ImplicitOverride = iota
	// ImplicitAllowed treats the implicit device number as a default,
	// applied when no device suffix is given.
	ImplicitAllowed
	// ImplicitRequired rejects any entry lacking an explicit device.
	ImplicitRequired
)

const allEnginesID = -1

// Configurations holds the known engines and their resolved device
// assignments after Apply.
type Configurations struct {
	names   map[int]string
	devices map[int]int
	aliases map[string]int
}

// New constructs a Configurations with no engines registered yet.
func New() *Configurations {
	c := &Configurations{
		names:   make(map[int]string),
		devices: make(map[int]int),
		aliases: make(map[string]int),
	}
	for _, a := range []string{"all", "any", "a", "*"} {
		c.aliases[a] = allEnginesID
	}
	return c
}

// Add registers an engine under id with a default device and a set of
// lowercase aliases (the canonical name is included automatically).
func (c *Configurations) Add(id int, name string, defaultDevice int, aliases ...string) {
	c.names[id] = name
	c.devices[id] = defaultDevice
	c.aliases[strings.ToLower(name)] = id
	for _, a := range aliases {
		c.aliases[strings.ToLower(a)] = id
	}
}

// Device returns the currently resolved device number for id. -1 is CPU, 0
// is GPU auto/default, N>0 is an explicit GPU index.
func (c *Configurations) Device(id int) (int, bool) {
	d, ok := c.devices[id]
	return d, ok
}

// IsGPU reports whether id is currently assigned a GPU device.
func (c *Configurations) IsGPU(id int) bool {
	d, ok := c.devices[id]
	return ok && d >= 0
}

// Apply parses config (a comma-separated engine:device list, case-folded)
// and updates device assignments. implicitDevice is used for entries with
// no device suffix, per implicitOverride's rule.
func (c *Configurations) Apply(config string, implicitDevice int, implicitOverride ImplicitOverride) error {
	for _, entry := range strings.Split(strings.ToLower(config), ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) > 3 {
			return fmt.Errorf("deviceconf: invalid engine device setting %q", entry)
		}

		id, ok := c.aliases[parts[0]]
		if !ok {
			return fmt.Errorf("deviceconf: engine %q was not recognized", parts[0])
		}

		switch len(parts) {
		case 1:
			if implicitOverride == ImplicitRequired {
				return fmt.Errorf("deviceconf: missing device for engine %q", parts[0])
			}
			c.set(id, implicitDevice)

		case 2:
			if implicitOverride == ImplicitNotAllowed {
				return fmt.Errorf("deviceconf: device setting not allowed (hardcoded to %d) for engine %q", implicitDevice, parts[0])
			}
			device, err := parseShortDeviceSetting(parts[1])
			if err != nil {
				return fmt.Errorf("deviceconf: engine %q: %w", parts[0], err)
			}
			c.set(id, device)

		case 3:
			if implicitOverride == ImplicitNotAllowed {
				return fmt.Errorf("deviceconf: device setting not allowed (hardcoded to %d) for engine %q", implicitDevice, parts[0])
			}
			device, err := parseLongDeviceSetting(parts[1], parts[2])
			if err != nil {
				return fmt.Errorf("deviceconf: engine %q: %w", parts[0], err)
			}
			c.set(id, device)
		}
	}
	return nil
}

func (c *Configurations) set(id, device int) {
	if id == allEnginesID {
		for engineID := range c.devices {
			c.devices[engineID] = device
		}
		return
	}
	c.devices[id] = device
}

// parseShortDeviceSetting handles the two-part "engine:setting" form, where
// setting is "cpu", "gpu", "gpu#N", or a bare device number.
func parseShortDeviceSetting(setting string) (int, error) {
	typeAndNum := strings.SplitN(setting, "#", 2)
	if len(typeAndNum) == 1 {
		switch typeAndNum[0] {
		case "cpu":
			return -1, nil
		case "gpu":
			return 0, nil
		default:
			device, err := strconv.Atoi(typeAndNum[0])
			if err != nil {
				return 0, fmt.Errorf("invalid device setting %q", setting)
			}
			if device < 0 {
				return -1, nil
			}
			return device, nil
		}
	}

	switch typeAndNum[0] {
	case "cpu":
		return 0, fmt.Errorf("CPU device does not take a device number")
	case "gpu":
		return parseGPUDeviceNumber(typeAndNum[1])
	default:
		return 0, fmt.Errorf("unknown device type %q", typeAndNum[0])
	}
}

// parseLongDeviceSetting handles the three-part "engine:type:number" form.
func parseLongDeviceSetting(deviceType, number string) (int, error) {
	switch deviceType {
	case "cpu":
		return 0, fmt.Errorf("CPU device does not take a device number")
	case "gpu":
		return parseGPUDeviceNumber(number)
	default:
		return 0, fmt.Errorf("unknown device type %q", deviceType)
	}
}

func parseGPUDeviceNumber(s string) (int, error) {
	switch s {
	case "*", "default", "any", "auto":
		return 0, nil
	}
	device, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid GPU device number %q", s)
	}
	if device < 0 {
		return 0, fmt.Errorf("invalid GPU device number %q", s)
	}
	return device, nil
}

// DeviceString renders a resolved device number the way operators expect to
// see it in logs: "cpu", "gpu#0", "gpu#1", ...
func DeviceString(device int) string {
	if device == -1 {
		return "cpu"
	}
	if device >= 0 {
		return fmt.Sprintf("gpu#%d", device)
	}
	return "unknown"
}
