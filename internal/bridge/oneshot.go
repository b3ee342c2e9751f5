package bridge

import "sync"

// oneshot is a signal that resolves exactly once, with either a value or an
// error, and fans out to any number of waiters. Later resolve/reject calls
// are no-ops; every waiter observes the same result.
type oneshot[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newOneshot[T any]() *oneshot[T] {
	return &oneshot[T]{done: make(chan struct{})}
}

func (o *oneshot[T]) resolve(v T) {
	o.once.Do(func() {
		o.val = v
		close(o.done)
	})
}

func (o *oneshot[T]) reject(err error) {
	o.once.Do(func() {
		o.err = err
		close(o.done)
	})
}

// Done is closed once the signal has resolved or been rejected.
func (o *oneshot[T]) Done() <-chan struct{} {
	return o.done
}

// Result returns the outcome. Only valid after Done is closed.
func (o *oneshot[T]) Result() (T, error) {
	return o.val, o.err
}
