// Package crash reports panics and unexpected errors to Sentry when a DSN
// is configured. Every function is a no-op otherwise.
package crash

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

const panicFlushTimeout = 2 * time.Second

var enabled atomic.Bool

// Init configures the Sentry client. An empty dsn leaves reporting off.
func Init(dsn, release string) error {
	if dsn == "" {
		return nil
	}
	return initWith(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		AttachStacktrace: true,
	})
}

func initWith(opts sentry.ClientOptions) error {
	if err := sentry.Init(opts); err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	enabled.Store(true)
	return nil
}

// Enabled reports whether events are forwarded.
func Enabled() bool { return enabled.Load() }

// Flush waits for buffered events. Call before exit.
func Flush(timeout time.Duration) {
	if enabled.Load() {
		sentry.Flush(timeout)
	}
}

// Recover must be deferred. It logs a panic with its stack, forwards it,
// and panics again when rePanic is set.
func Recover(log *slog.Logger, name string, rePanic bool) {
	r := recover()
	if r == nil {
		return
	}
	stack := debug.Stack()
	CapturePanic(r, stack, name)
	if log != nil {
		log.Error("panic", "in", name, "value", fmt.Sprint(r), "stack", string(stack))
	}
	if rePanic {
		panic(r)
	}
}

// CapturePanic forwards a recovered value with its stack.
func CapturePanic(v any, stack []byte, name string) {
	if !enabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("panic_context", name)
		scope.SetExtra("stack_trace", string(stack))
		scope.SetLevel(sentry.LevelFatal)
		if err, ok := v.(error); ok {
			sentry.CaptureException(err)
			return
		}
		sentry.CaptureMessage(fmt.Sprint(v))
	})
	sentry.Flush(panicFlushTimeout)
}

// CaptureError forwards err tagged with where it happened.
func CaptureError(err error, where string, extra map[string]any) {
	if !enabled.Load() || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_context", where)
		for k, v := range extra {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}
