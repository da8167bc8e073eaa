// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"

	"github.com/gordonklaus/portaudio"
)

// DefaultDeviceID selects the system default input device.
const DefaultDeviceID = -1

// PortAudio entry points, replaced in tests.
var (
	paLibInitialize             = portaudio.Initialize
	paLibTerminate              = portaudio.Terminate
	paLibDevicesFunc            = portaudio.Devices
	paLibDefaultInputDeviceFunc = portaudio.DefaultInputDevice
	paDevicesFunc               = paDevices
)

// Initialize sets up the PortAudio subsystem.
// This must be called before any device operation and paired with a Terminate() call.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
// This should be deferred immediately after Initialize().
func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// InputDevice retrieves the audio input device for the given device ID.
// If deviceID is DefaultDeviceID (-1), returns the system default input device.
// Returns an error if the device ID is invalid or the device has no inputs.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	devices, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	if deviceID == DefaultDeviceID {
		device, err := paLibDefaultInputDeviceFunc()
		if err != nil {
			return nil, err
		}
		return device, nil
	}

	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	device := devices[deviceID]
	if device.MaxInputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) does not support input", deviceID, device.Name)
	}
	return device, nil
}

// ListDevices writes information about all available audio devices to w.
// For each device, it shows:
// - Device ID and name
// - Device type (Input/Output/Input+Output)
// - Channel count
// - Default sample rate
// - Latency ranges
func ListDevices(w io.Writer) error {
	devices, err := paDevicesFunc()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")

	for i, device := range devices {
		fmt.Fprintf(w, "[%d] %s (%s)\n", i, device.Name, deviceType(device.MaxInputChannels, device.MaxOutputChannels))
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", device.MaxInputChannels, device.MaxOutputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
		fmt.Fprintf(w, "    Latency: Low=%.2fms, High=%.2fms\n",
			device.DefaultLowInputLatency.Seconds()*1000,
			device.DefaultHighInputLatency.Seconds()*1000)
		fmt.Fprintln(w)
	}

	return nil
}

// paDevices returns all available PortAudio devices, never a nil slice on success.
func paDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []*portaudio.DeviceInfo{}
	}
	return devices, nil
}

func deviceType(inputChannels, outputChannels int) string {
	switch {
	case inputChannels > 0 && outputChannels > 0:
		return "Input/Output"
	case inputChannels > 0:
		return "Input"
	case outputChannels > 0:
		return "Output"
	default:
		return ""
	}
}
