// Package playback drains the ring buffer at the stream's natural rate and
// feeds the external player.
package playback

// State is the playback state machine position.
type State int

// Playback states. Stopped is terminal until the next Start; Resume always
// lands on Buffering so audible output only restarts once the buffer check
// passes.
const (
	StateStopped State = iota
	StateBuffering
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
