// SPDX-License-Identifier: MIT
package audio

import (
	"time"
)

// Device represents an audio device
type Device struct {
	ID                int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	LowInputLatency   time.Duration
	HighInputLatency  time.Duration
}

// IsInput reports whether the device can capture.
func (d Device) IsInput() bool {
	return d.MaxInputChannels > 0
}

// Type returns "Input", "Output" or "Input/Output".
func (d Device) Type() string {
	return deviceType(d.MaxInputChannels, d.MaxOutputChannels)
}

// HostDevices returns all devices known to an initialized PortAudio.
func HostDevices() ([]Device, error) {
	paDeviceInfos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	devices := make([]Device, len(paDeviceInfos))
	for i, info := range paDeviceInfos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			LowInputLatency:   info.DefaultLowInputLatency,
			HighInputLatency:  info.DefaultHighInputLatency,
		}
		if info.HostApi != nil {
			devices[i].HostAPI = info.HostApi.Name
		}
	}

	return devices, nil
}

// InputDevices returns only the devices that can capture.
func InputDevices() ([]Device, error) {
	devices, err := HostDevices()
	if err != nil {
		return nil, err
	}
	inputs := devices[:0]
	for _, d := range devices {
		if d.IsInput() {
			inputs = append(inputs, d)
		}
	}
	return inputs, nil
}
