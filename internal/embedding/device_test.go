package embedding

import (
	"errors"
	"testing"
)

func TestParseDevice(t *testing.T) {
	tests := []struct {
		in      string
		want    Device
		wantErr bool
	}{
		{"", DeviceAuto, false},
		{"auto", DeviceAuto, false},
		{"CUDA", DeviceCUDA, false},
		{" coreml ", DeviceCoreML, false},
		{"cpu", DeviceCPU, false},
		{"tpu", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDevice(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseDevice(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestProbeDevice(t *testing.T) {
	unavailable := errors.New("unavailable")

	t.Run("auto prefers accelerator", func(t *testing.T) {
		var tried []Device
		got, err := ProbeDevice(DeviceAuto, func(d Device) error {
			tried = append(tried, d)
			return nil
		})
		if err != nil || got != DeviceCUDA {
			t.Fatalf("got %s, %v", got, err)
		}
		if len(tried) != 1 {
			t.Errorf("should stop at first success, tried %v", tried)
		}
	})

	t.Run("auto falls back to cpu", func(t *testing.T) {
		var tried []Device
		got, err := ProbeDevice(DeviceAuto, func(d Device) error {
			tried = append(tried, d)
			if d == DeviceCPU {
				return nil
			}
			return unavailable
		})
		if err != nil || got != DeviceCPU {
			t.Fatalf("got %s, %v", got, err)
		}
		if len(tried) != 3 || tried[0] != DeviceCUDA || tried[1] != DeviceCoreML {
			t.Errorf("probe order = %v", tried)
		}
	})

	t.Run("explicit device does not fall back", func(t *testing.T) {
		var tried []Device
		_, err := ProbeDevice(DeviceCUDA, func(d Device) error {
			tried = append(tried, d)
			return unavailable
		})
		if !errors.Is(err, unavailable) {
			t.Errorf("expected wrapped error, got %v", err)
		}
		if len(tried) != 1 {
			t.Errorf("tried = %v", tried)
		}
	})
}
