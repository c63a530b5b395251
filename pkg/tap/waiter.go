package tap

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Family groups operations that share one pending slot.
type Family string

const (
	FamilyActivation  Family = "activation"
	FamilyConnect     Family = "connect"
	FamilyTransaction Family = "transaction"
)

// waiter is a one-shot promise for a single blocked caller.
// The first resolve or fail wins; later calls report false and change nothing.
type waiter[T any] struct {
	id     string
	family Family
	op     string

	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newWaiter[T any](family Family, op string) *waiter[T] {
	return &waiter[T]{
		id:     uuid.NewString(),
		family: family,
		op:     op,
		done:   make(chan struct{}),
	}
}

func (w *waiter[T]) resolve(v T) bool {
	return w.settle(v, nil)
}

func (w *waiter[T]) fail(err error) bool {
	var zero T
	return w.settle(zero, err)
}

func (w *waiter[T]) settle(v T, err error) bool {
	settled := false
	w.once.Do(func() {
		w.val, w.err = v, err
		settled = true
		close(w.done)
	})
	return settled
}

// resolved reports whether the waiter has been settled.
func (w *waiter[T]) resolved() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// wait blocks until the waiter settles or ctx ends. A settled outcome wins over a
// context that ends at the same moment.
func (w *waiter[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-w.done:
		return w.val, w.err
	case <-ctx.Done():
		select {
		case <-w.done:
			return w.val, w.err
		default:
		}
		var zero T
		return zero, ctx.Err()
	}
}

// pending is the type-erased view the session uses to cancel waiters of any type.
type pending interface {
	fail(err error) bool
	resolved() bool
}
