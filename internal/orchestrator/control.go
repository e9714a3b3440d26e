package orchestrator

import "sync/atomic"

// Control is the process-wide run state shared between the control surface
// and the cycle loop. Flags are read only at item boundaries, so a request
// may take effect one item after it was made.
type Control struct {
	running atomic.Bool
	pause   atomic.Bool
	stop    atomic.Bool
}

// Status is a snapshot of Control.
type Status struct {
	Running       bool `json:"running"`
	Paused        bool `json:"paused"`
	StopRequested bool `json:"stop_requested"`
}

// RequestStop asks the running cycle to exit after the current item.
func (c *Control) RequestStop() { c.stop.Store(true) }

// RequestPause holds the cycle before its next item.
func (c *Control) RequestPause() { c.pause.Store(true) }

// RequestResume releases a paused cycle.
func (c *Control) RequestResume() { c.pause.Store(false) }

// Status returns the current flags.
func (c *Control) Status() Status {
	return Status{
		Running:       c.running.Load(),
		Paused:        c.pause.Load(),
		StopRequested: c.stop.Load(),
	}
}

// acquire marks a cycle as running. It fails if one already is.
func (c *Control) acquire() bool {
	if !c.running.CompareAndSwap(false, true) {
		return false
	}
	c.stop.Store(false)
	c.pause.Store(false)
	return true
}

func (c *Control) release() { c.running.Store(false) }
