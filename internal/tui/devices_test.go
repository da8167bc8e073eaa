// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"testing"

	"soundmeter/internal/audio"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDevices() []audio.Device {
	return []audio.Device{
		{ID: 0, Name: "Built-in Microphone", HostAPI: "Core Audio", MaxInputChannels: 2, DefaultSampleRate: 48000},
		{ID: 3, Name: "USB Interface", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 96000},
		{ID: 4, Name: "Odd Rate", MaxInputChannels: 1, DefaultSampleRate: 22050},
	}
}

func pickerUpdate(t *testing.T, m DevicePickerModel, msg tea.Msg) (DevicePickerModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(DevicePickerModel)
	require.True(t, ok)
	return model, cmd
}

func loadedPicker(t *testing.T) DevicePickerModel {
	t.Helper()
	m := NewDevicePickerModel(func() ([]audio.Device, error) { return testDevices(), nil })
	m, _ = pickerUpdate(t, m, tea.WindowSizeMsg{Width: 80, Height: 40})
	m, _ = pickerUpdate(t, m, m.Init()())
	require.Len(t, m.devices, 3)
	return m
}

func TestDevicePickerSelects(t *testing.T) {
	m := loadedPicker(t)
	view := m.View()
	assert.Contains(t, view, "Input Devices")
	assert.Contains(t, view, "Built-in Microphone")
	assert.Contains(t, view, "Host API: Core Audio")

	m, _ = pickerUpdate(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.selectedIndex)

	m, _ = pickerUpdate(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ConfigScreen, m.activeScreen)
	assert.Equal(t, 96000.0, SampleRates[m.sampleRateIndex], "device default preselected")
	assert.Contains(t, m.View(), "Configure Device: USB Interface")

	m, _ = pickerUpdate(t, m, tea.KeyMsg{Type: tea.KeyUp})
	m, cmd := pickerUpdate(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	sel, ok := m.Selection()
	require.True(t, ok)
	assert.Equal(t, Selection{DeviceID: 3, DeviceName: "USB Interface", SampleRate: 88200}, sel)
}

func TestDevicePickerNavigationBounds(t *testing.T) {
	m := loadedPicker(t)

	m, _ = pickerUpdate(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.selectedIndex)
	for range 5 {
		m, _ = pickerUpdate(t, m, runes("j"))
	}
	assert.Equal(t, 2, m.selectedIndex)

	// Unknown default rate falls back to the first offered rate.
	m, _ = pickerUpdate(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, 0, m.sampleRateIndex)

	m, _ = pickerUpdate(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ListScreen, m.activeScreen)
	_, ok := m.Selection()
	assert.False(t, ok)
}

func TestDevicePickerQuitWithoutSelection(t *testing.T) {
	m := loadedPicker(t)
	m, cmd := pickerUpdate(t, m, runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	_, ok := m.Selection()
	assert.False(t, ok)
}

func TestDevicePickerEmptyAndError(t *testing.T) {
	m := NewDevicePickerModel(func() ([]audio.Device, error) { return nil, nil })
	assert.Equal(t, "Initializing...", m.View())
	m, _ = pickerUpdate(t, m, tea.WindowSizeMsg{Width: 80, Height: 40})
	m, _ = pickerUpdate(t, m, m.Init()())
	assert.Contains(t, m.View(), "No audio input devices found.")

	m, _ = pickerUpdate(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ListScreen, m.activeScreen)

	failing := NewDevicePickerModel(func() ([]audio.Device, error) { return nil, errors.New("no host") })
	failing, _ = pickerUpdate(t, failing, tea.WindowSizeMsg{Width: 80, Height: 40})
	failing, _ = pickerUpdate(t, failing, failing.Init()())
	assert.Contains(t, failing.View(), "no host")

	_, cmd := pickerUpdate(t, failing, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
