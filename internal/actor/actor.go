// Package actor provides a small generic mailbox: a single goroutine
// that owns some mutable state and processes one request at a time,
// serializing concurrent callers against long-lived resources like the
// repository, the working tree and the config file.
package actor

import "context"

// Mailbox runs fn calls one at a time, in the order they are submitted,
// on a single goroutine. The zero value is not usable; call Start.
type Mailbox struct {
	requests chan func()
	done     chan struct{}
}

// Start launches the mailbox's goroutine. Stop must be called to release
// it once the owning resource is no longer needed.
func Start() *Mailbox {
	m := &Mailbox{
		requests: make(chan func()),
		done:     make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Mailbox) loop() {
	defer close(m.done)
	for req := range m.requests {
		req()
	}
}

// Do submits fn and blocks until it has run, or until ctx is done. If ctx
// is cancelled before fn starts running, Do returns ctx.Err() without
// running fn; if fn has already started, Do still waits for it to finish
// since the actor completes its current operation before accepting the
// next.
func Do(ctx context.Context, m *Mailbox, fn func()) error {
	started := make(chan struct{})
	reply := make(chan struct{})

	wrapped := func() {
		close(started)
		fn()
		close(reply)
	}

	select {
	case m.requests <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-started:
		<-reply
		return nil
	case <-ctx.Done():
		<-reply
		return ctx.Err()
	}
}

// Stop terminates the mailbox's goroutine once any in-flight request
// finishes processing. It is safe to call at most once.
func (m *Mailbox) Stop() {
	close(m.requests)
	<-m.done
}
