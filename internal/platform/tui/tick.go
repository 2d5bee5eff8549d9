// Package tui provides the Bubble Tea spectator for the arena. It renders
// match frames from a feed, browses stored matches and serves both over SSH.
package tui

import (
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// viewerSeq numbers watch views so a view ignores ticks scheduled by one it
// replaced in the same program.
var viewerSeq atomic.Uint64

// TickMsg advances playback of the watch view that scheduled it by one frame.
type TickMsg struct {
	At     time.Time
	viewer uint64
}

// playbackTick schedules the next frame for viewer at fps frames per second.
func playbackTick(viewer uint64, fps int) tea.Cmd {
	return tea.Tick(time.Second/time.Duration(max(fps, 1)), func(t time.Time) tea.Msg {
		return TickMsg{At: t, viewer: viewer}
	})
}
