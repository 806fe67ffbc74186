package sigchan

// Chan is a non-blocking notification channel. Emit never blocks; when the
// buffer is full the signal is dropped, which is fine because one pending
// signal already means "wake up and look".
type Chan struct {
	c chan struct{}
}

func New(bufferSize int) *Chan {
	return &Chan{
		c: make(chan struct{}, bufferSize),
	}
}

// Emit signals without blocking.
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C returns the channel to select on.
func (c *Chan) C() <-chan struct{} {
	return c.c
}
