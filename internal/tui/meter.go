// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"soundmeter/internal/analysis"
	"soundmeter/internal/audio"
	applog "soundmeter/internal/log"
	"soundmeter/internal/meter"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

// Calibration steps for the level meter keys.
const (
	OffsetStep = 1.0
	ScaleStep  = 0.1
)

const (
	defaultWidth   = 80
	spectrumHeight = 12
)

var barRunes = []rune(" ▁▂▃▄▅▆▇█")

type keyMap struct {
	Toggle   key.Binding
	OffsetUp key.Binding
	OffsetDn key.Binding
	ScaleUp  key.Binding
	ScaleDn  key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Toggle:   key.NewBinding(key.WithKeys(" ", "s"), key.WithHelp("space", "start/stop")),
	OffsetUp: key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "offset")),
	OffsetDn: key.NewBinding(key.WithKeys("-", "_")),
	ScaleUp:  key.NewBinding(key.WithKeys("]"), key.WithHelp("[/]", "scale")),
	ScaleDn:  key.NewBinding(key.WithKeys("[")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// frameMsg drives one display frame. gen ties it to the run that scheduled it.
type frameMsg struct{ gen int }

// startedMsg reports the outcome of an asynchronous start. A gen older than
// the model's means the start was cancelled by a stop.
type startedMsg struct {
	gen int
	err error
}

// MeterModel is the Bubble Tea model of one widget. Exactly one of level and
// spectrum is set.
type MeterModel struct {
	ctx      context.Context
	level    *meter.LevelMeter
	spectrum *meter.SpectrumMeter
	interval time.Duration

	active   bool // Frame loop scheduled.
	starting bool
	gen      int
	notice   string
	width    int
	bar      progress.Model
}

// NewLevelModel returns a model for the noise-level widget.
func NewLevelModel(ctx context.Context, m *meter.LevelMeter, interval time.Duration) MeterModel {
	return newMeterModel(ctx, interval, m, nil)
}

// NewSpectrumModel returns a model for the spectrum widget.
func NewSpectrumModel(ctx context.Context, m *meter.SpectrumMeter, interval time.Duration) MeterModel {
	return newMeterModel(ctx, interval, nil, m)
}

func newMeterModel(ctx context.Context, interval time.Duration, level *meter.LevelMeter, spectrum *meter.SpectrumMeter) MeterModel {
	bar := progress.New(progress.WithGradient("#25A065", "#E8453C"), progress.WithoutPercentage())
	bar.Width = defaultWidth - 4
	return MeterModel{
		ctx:      ctx,
		level:    level,
		spectrum: spectrum,
		interval: interval,
		width:    defaultWidth,
		bar:      bar,
	}
}

func (m MeterModel) widget() meter.Meter {
	if m.level != nil {
		return m.level
	}
	return m.spectrum
}

// Init starts capturing as soon as the program runs.
func (m MeterModel) Init() tea.Cmd {
	return m.toggleCmd()
}

// toggleCmd flips the widget from Idle or Error into capturing. Opening a
// source can block, so it runs off the update loop.
func (m MeterModel) toggleCmd() tea.Cmd {
	mt, ctx, gen := m.widget(), m.ctx, m.gen
	return func() tea.Msg {
		return startedMsg{gen: gen, err: meter.Toggle(ctx, mt)}
	}
}

func (m MeterModel) frameCmd() tea.Cmd {
	gen := m.gen
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return frameMsg{gen: gen}
	})
}

func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-4, 10)

	case startedMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.starting = false
		if msg.err != nil {
			// Session failures are rendered from the session itself.
			if m.widget().Session().Err() == nil {
				m.notice = msg.err.Error()
			}
			return m, nil
		}
		m.active = true
		m.gen++
		return m, m.frameCmd()

	case frameMsg:
		// Ticks from a stopped run are dropped and not rescheduled.
		if !m.active || msg.gen != m.gen {
			return m, nil
		}
		m.poll()
		return m, m.frameCmd()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.stop()
			return m, tea.Quit
		case key.Matches(msg, keys.Toggle):
			// Stopping while starting abandons the pending open.
			if m.active || m.starting {
				m.stop()
				return m, nil
			}
			m.starting = true
			m.notice = ""
			return m, m.toggleCmd()
		case m.level != nil && key.Matches(msg, keys.OffsetUp):
			m.adjustCalibration(OffsetStep, 0)
		case m.level != nil && key.Matches(msg, keys.OffsetDn):
			m.adjustCalibration(-OffsetStep, 0)
		case m.level != nil && key.Matches(msg, keys.ScaleUp):
			m.adjustCalibration(0, ScaleStep)
		case m.level != nil && key.Matches(msg, keys.ScaleDn):
			m.adjustCalibration(0, -ScaleStep)
		}
	}
	return m, nil
}

func (m *MeterModel) poll() {
	var err error
	if m.level != nil {
		_, err = m.level.Poll()
	} else {
		_, err = m.spectrum.Poll()
	}
	if err != nil {
		applog.Warnf("TUI: Poll failed: %v", err)
	}
}

func (m *MeterModel) stop() {
	if err := m.widget().Stop(); err != nil {
		applog.Warnf("TUI: Stop failed: %v", err)
	}
	m.active = false
	m.starting = false
	m.gen++
}

func (m *MeterModel) adjustCalibration(dOffset, dScale float64) {
	cal := m.level.Calibration()
	cal.Offset += dOffset
	// Round away float drift from repeated 0.1 steps.
	cal.Scale = math.Round((cal.Scale+dScale)*10) / 10
	if err := m.level.SetCalibration(cal); err != nil {
		m.notice = err.Error()
		return
	}
	m.notice = ""
}

func (m MeterModel) View() string {
	var sb strings.Builder

	if m.level != nil {
		sb.WriteString(titleStyle.Render("Noise Level"))
	} else {
		sb.WriteString(titleStyle.Render("FFT Spectrum"))
	}
	sb.WriteString("  ")
	sb.WriteString(mutedStyle.Render(m.status()))
	sb.WriteString("\n\n")

	if err := m.widget().Session().Err(); err != nil {
		sb.WriteString(errorStyle.Render(errorText(err)))
		sb.WriteString("\n\n")
	} else if m.level != nil {
		sb.WriteString(m.levelView())
	} else {
		sb.WriteString(m.spectrumView())
	}

	if m.notice != "" {
		sb.WriteString(errorStyle.Render(m.notice))
		sb.WriteString("\n")
	}
	sb.WriteString(infoStyle.Render(m.help()))
	return sb.String()
}

func (m MeterModel) status() string {
	switch {
	case m.starting:
		return "starting..."
	case m.active:
		return "capturing from " + m.widget().Session().SourceName()
	case m.widget().Session().Err() != nil:
		return "error"
	default:
		return "stopped"
	}
}

func (m MeterModel) help() string {
	parts := []string{"space: start/stop"}
	if m.level != nil {
		parts = append(parts, "+/-: offset", "[/]: scale")
	}
	parts = append(parts, "q: quit")
	return strings.Join(parts, " • ")
}

// errorText turns a capture failure into the message shown instead of a reading.
func errorText(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "Microphone access was denied. Check your system privacy settings."
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return fmt.Sprintf("No usable audio input: %v", err)
	default:
		return fmt.Sprintf("Capture failed: %v", err)
	}
}

func (m MeterModel) levelView() string {
	var sb strings.Builder
	r := m.level.Last()

	reading := "-- dB"
	percent := 0.0
	if r.LevelPercent != nil {
		reading = fmt.Sprintf("%d dB", *r.LevelPercent)
		percent = float64(*r.LevelPercent) / analysis.MaxLevel
	}
	sb.WriteString(readoutStyle.Render(reading))
	sb.WriteString("\n")
	sb.WriteString(m.bar.ViewAs(percent))
	sb.WriteString("\n\n")

	cal := m.level.Calibration()
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("offset %.0f  scale %.1f", cal.Offset, cal.Scale)))
	sb.WriteString("\n\n")
	return sb.String()
}

func (m MeterModel) spectrumView() string {
	var sb strings.Builder
	r := m.spectrum.Last()

	columns := max(m.width-2, 10)
	sb.WriteString(barStyle.Render(renderBars(r.Spectrum, columns, spectrumHeight)))
	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render(m.axis(columns)))
	sb.WriteString("\n")

	peak := "Peak: -- Hz"
	if r.Spectrum != nil {
		peak = fmt.Sprintf("Peak: %.0f Hz (magnitude %d)", r.PeakFrequencyHz, r.PeakMagnitude)
	}
	sb.WriteString(readoutStyle.Render(peak))
	sb.WriteString("\n")
	return sb.String()
}

// axis labels the first and last exposed frequency under the chart.
func (m MeterModel) axis(columns int) string {
	bins := m.spectrum.BinCount()
	left := "0 Hz"
	right := fmt.Sprintf("%.0f Hz", m.spectrum.FrequencyForBin(bins-1))
	gap := max(columns-len(left)-len(right), 1)
	return left + strings.Repeat(" ", gap) + right
}

// renderBars draws mags (0-255) as a bar chart of columns x height cells.
// Bins are grouped into columns by their maximum.
func renderBars(mags []int, columns, height int) string {
	if columns <= 0 || height <= 0 {
		return ""
	}
	if len(mags) == 0 {
		return strings.Repeat(strings.Repeat(" ", columns)+"\n", height-1) + strings.Repeat(" ", columns)
	}
	columns = min(columns, len(mags))

	// Height of each column in eighths of a cell.
	levels := make([]int, columns)
	for c := range columns {
		lo := c * len(mags) / columns
		hi := max((c+1)*len(mags)/columns, lo+1)
		peak := 0
		for _, v := range mags[lo:hi] {
			peak = max(peak, v)
		}
		levels[c] = peak * height * 8 / analysis.MaxMagnitude
	}

	var sb strings.Builder
	for row := height - 1; row >= 0; row-- {
		base := row * 8
		for _, lvl := range levels {
			fill := min(max(lvl-base, 0), 8)
			sb.WriteRune(barRunes[fill])
		}
		if row > 0 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Run starts the program and blocks until the user quits. The meter is
// stopped on return.
func Run(model MeterModel) error {
	defer func() { _ = model.widget().Stop() }()
	_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(model.ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && model.ctx.Err() != nil {
		return nil
	}
	return err
}
