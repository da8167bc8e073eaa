// SPDX-License-Identifier: MIT
package meter

import (
	"context"

	"soundmeter/internal/audio"
)

// Meter is the start/stop surface shared by the level and spectrum widgets.
type Meter interface {
	Start(ctx context.Context) error
	Stop() error
	Session() *audio.Session
}

// Compile-time checks for interface implementations.
var (
	_ Meter = (*LevelMeter)(nil)
	_ Meter = (*SpectrumMeter)(nil)
)

// Toggle starts a stopped meter and stops a running one, the behaviour of the
// widgets' single start/stop control. A meter in the Error state is started
// again.
func Toggle(ctx context.Context, m Meter) error {
	if m.Session().State() == audio.StateCapturing {
		return m.Stop()
	}
	return m.Start(ctx)
}
