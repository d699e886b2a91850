package services

import (
	"context"
	"sync"
	"time"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []LeaseEvent
}

func (r *recordingEmitter) Emit(event LeaseEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name
	}
	return names
}

func (r *recordingEmitter) Events() []LeaseEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LeaseEvent(nil), r.events...)
}

type stubSink struct {
	mu  sync.Mutex
	err error
	got []LeaseEvent
}

func (s *stubSink) Deliver(_ context.Context, event LeaseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, event)
	return nil
}

func (s *stubSink) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubSink) Delivered() []LeaseEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LeaseEvent(nil), s.got...)
}

// countingLocker 记录加锁次数以及同时持锁的最大数量
type countingLocker struct {
	inner UnitLocker

	mu      sync.Mutex
	calls   int
	holders int
	maxHeld int
}

func (c *countingLocker) Lock(ctx context.Context, unitID uint) (func(), error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	unlock, err := c.inner.Lock(ctx, unitID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.holders++
	if c.holders > c.maxHeld {
		c.maxHeld = c.holders
	}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		c.holders--
		c.mu.Unlock()
		unlock()
	}, nil
}

func (c *countingLocker) stats() (calls, maxHeld int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls, c.maxHeld
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, uint) (func(), error) {
	return func() {}, nil
}

// raceWindow 停留在重叠检查与写入之间，统计同时处于该区间的请求数
type raceWindow struct {
	hold time.Duration

	mu      sync.Mutex
	inside  int
	entries int
	peak    int
}

func (w *raceWindow) enter() {
	w.mu.Lock()
	w.inside++
	w.entries++
	if w.inside > w.peak {
		w.peak = w.inside
	}
	w.mu.Unlock()

	time.Sleep(w.hold)

	w.mu.Lock()
	w.inside--
	w.mu.Unlock()
}

func (w *raceWindow) stats() (entries, peak int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entries, w.peak
}
