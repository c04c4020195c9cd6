package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// abortWindow is how soon a second interrupt must follow a skip to stop a
// visual run instead of skipping another page.
const abortWindow = 2 * time.Second

// interruptRouter decides whether an interrupt skips a page or ends the
// process. It only skips while a run has claimed it.
type interruptRouter struct {
	mu    sync.Mutex
	now   func() time.Time
	skips chan struct{}
	last  time.Time
}

var interrupts = &interruptRouter{now: time.Now}

// claim routes interrupts to the returned channel until release is called.
func (r *interruptRouter) claim() (<-chan struct{}, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan struct{}, 1)
	r.skips = ch
	r.last = time.Time{}
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.skips == ch {
			r.skips = nil
		}
	}
}

// skip reports whether the interrupt was taken as a page skip.
func (r *interruptRouter) skip() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.skips == nil {
		return false
	}
	now := r.now()
	if !r.last.IsZero() && now.Sub(r.last) < abortWindow {
		return false
	}
	r.last = now
	select {
	case r.skips <- struct{}{}:
	default:
	}
	return true
}

// NotifyContext returns a context cancelled by SIGINT or SIGTERM. While a
// visual run holds the router, SIGINT skips the current page instead, and a
// second SIGINT within abortWindow cancels as usual.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				if sig == os.Interrupt && interrupts.skip() {
					continue
				}
				cancel()
				return
			}
		}
	}()
	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}
