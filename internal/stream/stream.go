package stream

import (
	"sync"
)

// Observer receives stream events. Nil callbacks are skipped.
type Observer[T any] struct {
	Next     func(T)
	Error    func(error)
	Complete func()
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	mu        sync.Mutex
	closed    bool
	stop      func()
	teardowns []func()
}

// Unsubscribe stops delivery and runs teardown functions. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop := s.stop
	teardowns := s.teardowns
	s.teardowns = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, fn := range teardowns {
		fn()
	}
}

// Closed reports whether the subscription has ended.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// addTeardown registers fn to run on Unsubscribe, or runs it now if the
// subscription already ended.
func (s *Subscription) addTeardown(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.teardowns = append(s.teardowns, fn)
	s.mu.Unlock()
}

type eventKind int

const (
	eventNext eventKind = iota
	eventError
	eventComplete
)

type event[T any] struct {
	kind  eventKind
	value T
	err   error
}

// Sink is the producer side of a single subscription.
type Sink[T any] struct {
	mu         sync.Mutex
	obs        Observer[T]
	queue      []event[T]
	delivering bool
	paused     bool
	terminated bool // a terminal event was accepted
	stopped    bool // unsubscribed or terminal delivered
	sub        *Subscription
}

func newSink[T any](obs Observer[T], sub *Subscription) *Sink[T] {
	k := &Sink[T]{obs: obs, sub: sub}
	sub.stop = k.halt
	return k
}

// Next delivers a value.
func (k *Sink[T]) Next(v T) {
	k.push(event[T]{kind: eventNext, value: v})
}

// Error delivers a terminal error.
func (k *Sink[T]) Error(err error) {
	k.push(event[T]{kind: eventError, err: err})
}

// Complete delivers terminal completion.
func (k *Sink[T]) Complete() {
	k.push(event[T]{kind: eventComplete})
}

// Closed reports whether the sink no longer accepts events.
func (k *Sink[T]) Closed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stopped || k.terminated
}

func (k *Sink[T]) halt() {
	k.mu.Lock()
	k.stopped = true
	k.queue = nil
	k.mu.Unlock()
}

// Pause buffers events until Resume. Producers that must push a priming
// event while holding their own locks pause the sink first, so that no
// observer code runs under those locks.
func (k *Sink[T]) Pause() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.paused = true
}

// Resume delivers buffered events and ends a Pause.
func (k *Sink[T]) Resume() {
	k.mu.Lock()
	k.paused = false
	if k.delivering || k.stopped {
		k.mu.Unlock()
		return
	}
	k.delivering = true
	k.drainLocked()
}

func (k *Sink[T]) push(e event[T]) {
	k.mu.Lock()
	if k.stopped || k.terminated {
		k.mu.Unlock()
		return
	}
	if e.kind != eventNext {
		k.terminated = true
	}
	k.queue = append(k.queue, e)
	if k.delivering || k.paused {
		k.mu.Unlock()
		return
	}
	k.delivering = true
	k.drainLocked()
}

// drainLocked delivers queued events. Called with k.mu held and delivering
// set; returns with k.mu released.
func (k *Sink[T]) drainLocked() {
	for len(k.queue) > 0 && !k.stopped {
		next := k.queue[0]
		var zero event[T]
		k.queue[0] = zero
		k.queue = k.queue[1:]
		k.mu.Unlock()

		terminal := k.deliver(next)

		k.mu.Lock()
		if terminal {
			k.stopped = true
			k.queue = nil
			k.delivering = false
			k.mu.Unlock()
			k.sub.Unsubscribe()
			return
		}
	}
	k.delivering = false
	k.mu.Unlock()
}

func (k *Sink[T]) deliver(e event[T]) (terminal bool) {
	switch e.kind {
	case eventNext:
		if k.obs.Next != nil {
			k.obs.Next(e.value)
		}
		return false
	case eventError:
		if k.obs.Error != nil {
			k.obs.Error(e.err)
		}
	case eventComplete:
		if k.obs.Complete != nil {
			k.obs.Complete()
		}
	}
	return true
}

// Stream is a cold event source.
type Stream[T any] struct {
	subscribe func(sink *Sink[T]) (teardown func())
}

// New creates a stream from a subscribe function. The function receives the
// subscriber's sink and returns an optional teardown run on Unsubscribe.
func New[T any](subscribe func(sink *Sink[T]) (teardown func())) *Stream[T] {
	return &Stream[T]{subscribe: subscribe}
}

// Subscribe attaches an observer.
func (s *Stream[T]) Subscribe(obs Observer[T]) *Subscription {
	sub := &Subscription{}
	sink := newSink(obs, sub)
	teardown := s.subscribe(sink)
	sub.addTeardown(teardown)
	return sub
}

// Of creates a stream that emits values then completes.
func Of[T any](values ...T) *Stream[T] {
	return New(func(sink *Sink[T]) func() {
		for _, v := range values {
			sink.Next(v)
		}
		sink.Complete()
		return nil
	})
}

// Fail creates a stream that errors immediately.
func Fail[T any](err error) *Stream[T] {
	return New(func(sink *Sink[T]) func() {
		sink.Error(err)
		return nil
	})
}

// Map transforms every value of src.
func Map[T, U any](src *Stream[T], fn func(T) U) *Stream[U] {
	return New(func(sink *Sink[U]) func() {
		sub := src.Subscribe(Observer[T]{
			Next:     func(v T) { sink.Next(fn(v)) },
			Error:    sink.Error,
			Complete: sink.Complete,
		})
		return sub.Unsubscribe
	})
}

// Until mirrors src until stop emits or terminates, then completes.
func Until[T, U any](src *Stream[T], stop *Stream[U]) *Stream[T] {
	return New(func(sink *Sink[T]) func() {
		var (
			mu    sync.Mutex
			inner *Subscription
			ended bool
		)
		end := func() {
			mu.Lock()
			ended = true
			cur := inner
			mu.Unlock()
			if cur != nil {
				cur.Unsubscribe()
			}
			sink.Complete()
		}
		stopSub := stop.Subscribe(Observer[U]{
			Next:     func(U) { end() },
			Error:    func(error) { end() },
			Complete: end,
		})
		if sink.Closed() {
			return stopSub.Unsubscribe
		}

		sub := src.Subscribe(Observer[T]{
			Next:     sink.Next,
			Error:    sink.Error,
			Complete: sink.Complete,
		})
		mu.Lock()
		inner = sub
		stopped := ended
		mu.Unlock()
		if stopped {
			sub.Unsubscribe()
		}
		return func() {
			stopSub.Unsubscribe()
			sub.Unsubscribe()
		}
	})
}

// Merge interleaves the values of all sources. It completes once every
// source completed and errors as soon as one source errors.
func Merge[T any](sources ...*Stream[T]) *Stream[T] {
	return New(func(sink *Sink[T]) func() {
		if len(sources) == 0 {
			sink.Complete()
			return nil
		}
		var (
			mu        sync.Mutex
			remaining = len(sources)
			subs      []*Subscription
		)
		cancelAll := func() {
			mu.Lock()
			all := subs
			mu.Unlock()
			for _, sub := range all {
				sub.Unsubscribe()
			}
		}
		for _, src := range sources {
			sub := src.Subscribe(Observer[T]{
				Next: sink.Next,
				Error: func(err error) {
					sink.Error(err)
					cancelAll()
				},
				Complete: func() {
					mu.Lock()
					remaining--
					last := remaining == 0
					mu.Unlock()
					if last {
						sink.Complete()
					}
				},
			})
			mu.Lock()
			subs = append(subs, sub)
			mu.Unlock()
		}
		return cancelAll
	})
}

// Collect subscribes and returns everything delivered synchronously during
// Subscribe, plus the terminal state at that point. Intended for streams
// that are known to emit synchronously (tests, replay subjects).
func Collect[T any](s *Stream[T]) (values []T, err error, done bool) {
	sub := s.Subscribe(Observer[T]{
		Next:     func(v T) { values = append(values, v) },
		Error:    func(e error) { err = e; done = true },
		Complete: func() { done = true },
	})
	sub.Unsubscribe()
	return values, err, done
}
