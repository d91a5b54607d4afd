// Package eventbus is a minimal in-process dispatcher decoupling the
// request path from telemetry sinks. Handlers are keyed by the event's
// concrete type; publishing with no subscribers is free.
package eventbus

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// Handler processes events of type T.
type Handler[T any] func(context.Context, T)

// Bus dispatches events to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]any
}

func New() *Bus { return &Bus{handlers: make(map[reflect.Type][]any)} }

func (b *Bus) subscribe(t reflect.Type, h any) (unsubscribe func()) {
	b.mu.Lock()
	b.handlers[t] = append(b.handlers[t], h)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		hs := b.handlers[t]
		for i, fn := range hs {
			if reflect.ValueOf(fn).Pointer() == reflect.ValueOf(h).Pointer() {
				hs = append(hs[:i], hs[i+1:]...)
				break
			}
		}
		if len(hs) == 0 {
			delete(b.handlers, t)
		} else {
			b.handlers[t] = hs
		}
	}
}

func (b *Bus) emit(ctx context.Context, e any) {
	if b == nil {
		return
	}
	t := reflect.TypeOf(e)
	b.mu.RLock()
	hs := b.handlers[t]
	if len(hs) == 0 {
		b.mu.RUnlock()
		return
	}
	copied := append([]any(nil), hs...)
	b.mu.RUnlock()
	for _, fn := range copied {
		fn.(func(context.Context, any))(ctx, e)
	}
}

var global atomic.Pointer[Bus]

// Use installs b as the global bus. Passing nil disables publishing.
func Use(b *Bus) { global.Store(b) }

// Subscribe registers h with the global bus and returns its unsubscribe
// function. Without a global bus it is a no-op.
func Subscribe[T any](h Handler[T]) (unsubscribe func()) {
	if b := global.Load(); b != nil {
		t := reflect.TypeOf((*T)(nil)).Elem()
		wrapped := func(ctx context.Context, v any) { h(ctx, v.(T)) }
		return b.subscribe(t, wrapped)
	}
	return func() {}
}

// Publish sends e through the global bus, synchronously, on the caller's
// goroutine.
func Publish[T any](ctx context.Context, e T) {
	if b := global.Load(); b != nil {
		b.emit(ctx, e)
	}
}
