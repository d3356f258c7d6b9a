package trial

// Countdown is the recall timer owned by one armed trial. Ticks carrying
// another countdown's ID are rejected, so a timer can never act on a trial
// it was not started for.
type Countdown struct {
	id        uint64
	remaining int
	stopped   bool
}

func newCountdown(id uint64, seconds int) *Countdown {
	return &Countdown{id: id, remaining: seconds}
}

// ID identifies the countdown in tick events.
func (c *Countdown) ID() uint64 {
	return c.id
}

// Remaining returns the whole seconds left.
func (c *Countdown) Remaining() int {
	return c.remaining
}

// Stopped reports whether the countdown was cancelled or ran out.
func (c *Countdown) Stopped() bool {
	return c.stopped
}

// Stop cancels the countdown. Calling it twice is harmless.
func (c *Countdown) Stop() {
	c.stopped = true
}

// tick decrements the countdown and reports whether it reached zero.
func (c *Countdown) tick() bool {
	if c.stopped {
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 {
		c.stopped = true
		return true
	}
	return false
}
