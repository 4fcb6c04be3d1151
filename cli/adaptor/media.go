package adaptor

import (
	"context"
	"fmt"
	"os"
)

// DeviceGate verifies that the configured capture devices can be opened.
// With no devices configured it always succeeds.
type DeviceGate struct {
	Devices []string
}

func NewDeviceGate(devices ...string) DeviceGate {
	return DeviceGate{Devices: devices}
}

func (g DeviceGate) Acquire(ctx context.Context) error {
	for _, dev := range g.Devices {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := os.Open(dev)
		if err != nil {
			return fmt.Errorf("open capture device %s: %w", dev, err)
		}
		f.Close()
	}
	return nil
}
