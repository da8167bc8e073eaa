// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	prevLevel := GetLevel()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	t.Cleanup(func() {
		UseConsole()
		SetLevel(prevLevel)
	})
	return buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"Fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelWarn)

	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
	assert.Equal(t, LevelWarn, GetLevel())
}

func TestForAddsComponent(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelDebug)

	l := For("session")
	l.Debug().Str("session_id", "abc").Msg("capture started")

	out := buf.String()
	assert.Contains(t, out, `"component":"session"`)
	assert.Contains(t, out, `"session_id":"abc"`)
	assert.Contains(t, out, "capture started")
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}
