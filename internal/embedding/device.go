package embedding

import (
	"errors"
	"fmt"
	"strings"
)

// Device is the compute target inference runs on.
type Device string

const (
	DeviceAuto   Device = "auto"
	DeviceCUDA   Device = "cuda"
	DeviceCoreML Device = "coreml"
	DeviceCPU    Device = "cpu"
)

// devicePreference is the order auto-selection tries: accelerators before CPU.
var devicePreference = []Device{DeviceCUDA, DeviceCoreML, DeviceCPU}

// ParseDevice maps a config value onto a Device. Empty means auto.
func ParseDevice(s string) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(s))); d {
	case "", DeviceAuto:
		return DeviceAuto, nil
	case DeviceCUDA, DeviceCoreML, DeviceCPU:
		return d, nil
	default:
		return "", fmt.Errorf("unknown device %q (supported: auto, cuda, coreml, cpu)", s)
	}
}

// ProbeDevice selects a device by calling try for each candidate. For DeviceAuto the
// candidates follow devicePreference and the first that succeeds wins; an explicit device
// is tried alone and its failure is returned.
func ProbeDevice(requested Device, try func(Device) error) (Device, error) {
	candidates := devicePreference
	if requested != DeviceAuto && requested != "" {
		candidates = []Device{requested}
	}
	var errs []error
	for _, d := range candidates {
		err := try(d)
		if err == nil {
			return d, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", d, err))
	}
	return "", fmt.Errorf("no usable compute device: %w", errors.Join(errs...))
}
