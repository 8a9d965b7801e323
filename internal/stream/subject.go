package stream

import (
	"slices"
	"sync"
)

// Subject multicasts events to its active subscribers.
type Subject[T any] struct {
	mu      sync.Mutex
	sinks   []*Sink[T]
	replay  bool
	history []T
	done    bool
	err     error
}

// NewSubject creates a subject without history.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{}
}

// NewReplaySubject creates a subject that replays every past value, and its
// terminal event, to late subscribers.
func NewReplaySubject[T any]() *Subject[T] {
	return &Subject[T]{replay: true}
}

// Next delivers v to all current subscribers.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	if s.replay {
		s.history = append(s.history, v)
	}
	sinks := slices.Clone(s.sinks)
	s.mu.Unlock()

	for _, sink := range sinks {
		sink.Next(v)
	}
}

// Error terminates the subject with err.
func (s *Subject[T]) Error(err error) {
	s.terminate(err, true)
}

// Complete terminates the subject successfully.
func (s *Subject[T]) Complete() {
	s.terminate(nil, false)
}

func (s *Subject[T]) terminate(err error, isErr bool) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.err = err
	sinks := s.sinks
	s.sinks = nil
	s.mu.Unlock()

	for _, sink := range sinks {
		if isErr {
			sink.Error(err)
		} else {
			sink.Complete()
		}
	}
}

// Done reports whether the subject has terminated.
func (s *Subject[T]) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Observers returns the number of active subscribers.
func (s *Subject[T]) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sinks)
}

// Subscribe attaches an observer to the subject.
func (s *Subject[T]) Subscribe(obs Observer[T]) *Subscription {
	return s.Stream().Subscribe(obs)
}

// Stream exposes the subject as a Stream.
func (s *Subject[T]) Stream() *Stream[T] {
	return New(s.attach)
}

func (s *Subject[T]) attach(sink *Sink[T]) func() {
	s.mu.Lock()
	history := slices.Clone(s.history)
	done, err := s.done, s.err
	if !done {
		s.sinks = append(s.sinks, sink)
	}
	s.mu.Unlock()

	for _, v := range history {
		sink.Next(v)
	}
	if done {
		if err != nil {
			sink.Error(err)
		} else {
			sink.Complete()
		}
		return nil
	}
	return func() { s.detach(sink) }
}

func (s *Subject[T]) detach(sink *Sink[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = slices.DeleteFunc(s.sinks, func(k *Sink[T]) bool { return k == sink })
}
