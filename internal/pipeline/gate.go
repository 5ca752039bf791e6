package pipeline

import "context"

// Gate is the one-permit semaphore serializing access to the codec engine.
// Waiters suspend on the permit channel and are woken on release; generation
// work never touches the gate.
type Gate struct {
	permit chan struct{}
}

// NewGate constructs an unheld gate.
func NewGate() *Gate {
	return &Gate{permit: make(chan struct{}, 1)}
}

// Acquire blocks until the gate is free or the context is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.permit <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the gate without waiting, reporting whether it succeeded.
func (g *Gate) TryAcquire() bool {
	select {
	case g.permit <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the gate. Releasing an unheld gate is a no-op so deferred
// releases on error paths stay safe.
func (g *Gate) Release() {
	select {
	case <-g.permit:
	default:
	}
}

// Held reports whether some caller currently holds the gate.
func (g *Gate) Held() bool {
	return len(g.permit) == 1
}
