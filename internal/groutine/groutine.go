// Package groutine starts goroutines that carry a name in their context and in
// their pprof labels, so simulated vendor callbacks show up by name in profiles
// and logs.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const nameKey ctxKey = "goroutine_name"

// Go runs fn on a new goroutine labelled name.
//
//	groutine.Go(ctx, "sim-connect", func(ctx context.Context) {
//	    delegate.OnConnected(handle)
//	})
//
// A nil parent uses context.Background().
func Go(parent context.Context, name string, fn func(ctx context.Context)) {
	if parent == nil {
		parent = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parent, labels, func(ctx context.Context) {
		fn(context.WithValue(ctx, nameKey, name))
	})
}

// Name returns the name given to Go, or "" when ctx did not come from Go.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(nameKey).(string); ok {
		return s
	}
	return ""
}
