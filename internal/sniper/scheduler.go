// internal/sniper/scheduler.go
package sniper

import (
	"context"
	"sync"
	"time"
)

// PollFunc runs once per tick. Returning true ends the poll and releases
// its handle.
type PollFunc func(ctx context.Context) (done bool)

// Scheduler owns at most one polling goroutine per key. Ticks for a key run
// serially on that goroutine; a tick that outlasts the interval makes the
// ticker drop the missed ticks instead of overlapping them.
type Scheduler struct {
	mu      sync.Mutex
	handles map[string]*pollHandle
	wg      sync.WaitGroup
}

type pollHandle struct {
	cancel context.CancelFunc
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{handles: make(map[string]*pollHandle)}
}

// Schedule starts polling fn every interval under key. A poll already
// running under key is cancelled first.
func (s *Scheduler) Schedule(key string, interval time.Duration, fn PollFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &pollHandle{cancel: cancel}

	s.mu.Lock()
	if prev, ok := s.handles[key]; ok {
		prev.cancel()
	}
	s.handles[key] = h
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.release(key, h)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				if fn(ctx) {
					return
				}
			}
		}
	}()
}

// Cancel stops the poll under key and reports whether one was registered.
// It does not wait for a tick in progress to finish.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	h, ok := s.handles[key]
	delete(s.handles, key)
	s.mu.Unlock()
	if ok {
		h.cancel()
	}
	return ok
}

// Has reports whether a poll is registered under key.
func (s *Scheduler) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[key]
	return ok
}

// Len returns the number of registered polls.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Stop cancels every poll and waits for their goroutines to exit or ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	for key, h := range s.handles {
		h.cancel()
		delete(s.handles, key)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release drops key only if it still maps to h, so a replacement poll is
// never removed by its predecessor.
func (s *Scheduler) release(key string, h *pollHandle) {
	s.mu.Lock()
	if cur, ok := s.handles[key]; ok && cur == h {
		delete(s.handles, key)
	}
	s.mu.Unlock()
	h.cancel()
}
