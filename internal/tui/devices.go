// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"soundmeter/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// SampleRates offered on the configuration screen.
var SampleRates = []float64{44100, 48000, 88200, 96000}

// Selection is the input device and rate the user confirmed.
type Selection struct {
	DeviceID   int
	DeviceName string
	SampleRate float64
}

// DevicesFunc lists the devices the picker offers.
type DevicesFunc func() ([]audio.Device, error)

// DevicePickerModel lets the user choose an input device and sample rate.
type DevicePickerModel struct {
	list          DevicesFunc
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	sampleRateIndex int

	selection *Selection
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDevicePickerModel creates a picker over the devices returned by list.
// A nil list uses audio.InputDevices.
func NewDevicePickerModel(list DevicesFunc) DevicePickerModel {
	if list == nil {
		list = audio.InputDevices
	}
	return DevicePickerModel{
		list:         list,
		activeScreen: ListScreen,
	}
}

// Init fetches the device list.
func (m DevicePickerModel) Init() tea.Cmd {
	list := m.list
	return func() tea.Msg {
		devices, err := list()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

// Selection returns the confirmed choice, if any.
func (m DevicePickerModel) Selection() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

func (m DevicePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
			m.refresh()
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case devicesMsg:
		m.devices = msg.devices
		m.selectedIndex = 0
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}
		if m.err != nil {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, pickerKeys.Up):
				if m.selectedIndex > 0 {
					m.selectedIndex--
					m.refresh()
				}
			case key.Matches(msg, pickerKeys.Down):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
					m.refresh()
				}
			case key.Matches(msg, pickerKeys.Enter):
				if len(m.devices) > 0 {
					m.activeScreen = ConfigScreen
					m.sampleRateIndex = rateIndex(m.devices[m.selectedIndex].DefaultSampleRate)
					m.refresh()
				}
			}

		case ConfigScreen:
			switch {
			case key.Matches(msg, pickerKeys.Back):
				m.activeScreen = ListScreen
				m.refresh()
			case key.Matches(msg, pickerKeys.Up):
				if m.sampleRateIndex > 0 {
					m.sampleRateIndex--
					m.refresh()
				}
			case key.Matches(msg, pickerKeys.Down):
				if m.sampleRateIndex < len(SampleRates)-1 {
					m.sampleRateIndex++
					m.refresh()
				}
			case key.Matches(msg, pickerKeys.Enter):
				d := m.devices[m.selectedIndex]
				m.selection = &Selection{
					DeviceID:   d.ID,
					DeviceName: d.Name,
					SampleRate: SampleRates[m.sampleRateIndex],
				}
				return m, tea.Quit
			}
		}
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

type pickerKeyMap struct {
	Up    key.Binding
	Down  key.Binding
	Enter key.Binding
	Back  key.Binding
}

var pickerKeys = pickerKeyMap{
	Up:    key.NewBinding(key.WithKeys("up", "k")),
	Down:  key.NewBinding(key.WithKeys("down", "j")),
	Enter: key.NewBinding(key.WithKeys("enter")),
	Back:  key.NewBinding(key.WithKeys("esc")),
}

// rateIndex returns the offered rate matching the device default, or 0.
func rateIndex(rate float64) int {
	for i, r := range SampleRates {
		if r == rate {
			return i
		}
	}
	return 0
}

func (m *DevicePickerModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderDeviceConfig())
		return
	}
	m.viewport.SetContent(m.renderDevices())
}

// View renders the UI
func (m DevicePickerModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n\nPress any key to exit."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Input Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Change Value • Enter: Start • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DevicePickerModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio input devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		deviceInfo := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, device.Type())
		if device.HostAPI != "" {
			deviceInfo += fmt.Sprintf("    Host API: %s\n", device.HostAPI)
		}
		deviceInfo += fmt.Sprintf("    Input channels: %d, Default sample rate: %.0f Hz\n",
			device.MaxInputChannels, device.DefaultSampleRate)
		deviceInfo += fmt.Sprintf("    Input latency: %v - %v\n",
			device.LowInputLatency, device.HighInputLatency)

		if i == m.selectedIndex {
			deviceInfo = highlightStyle.Render(deviceInfo)
		}
		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DevicePickerModel) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "Configure Device: %s\n\n", device.Name)
	sb.WriteString("Sample Rate:\n")
	for i, rate := range SampleRates {
		marker := " "
		if i == m.sampleRateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz\n", marker, rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// PickDevice runs the picker and returns the confirmed selection. ok is false
// when the user quit without choosing.
func PickDevice(list DevicesFunc) (sel Selection, ok bool, err error) {
	final, err := tea.NewProgram(NewDevicePickerModel(list), tea.WithAltScreen()).Run()
	if err != nil {
		return Selection{}, false, err
	}
	m, _ := final.(DevicePickerModel)
	if m.err != nil {
		return Selection{}, false, m.err
	}
	sel, ok = m.Selection()
	return sel, ok, nil
}
