package imp

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/imp/internal/soft"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for imp, the software device and every
// device of a live Context. By default imp produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore silence.
//
// Log levels used by imp:
//   - [slog.LevelDebug]: texture allocations, dispatch sizes, pipeline resolution
//   - [slog.LevelInfo]: device selected, context created
//   - [slog.LevelWarn]: failed command buffers, resource release problems
//
// Example:
//
//	imp.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	soft.SetLogger(l)

	devicesMu.Lock()
	for d := range devices {
		propagateLogger(d, l)
	}
	devicesMu.Unlock()
}

// Logger returns the current logger used by imp. Sub-packages call this to
// share the same logger configuration without import cycles.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

var (
	devicesMu sync.Mutex
	devices   = map[any]struct{}{}
)

// trackDevice registers a device for logger propagation and hands it the
// current logger.
func trackDevice(d any) {
	devicesMu.Lock()
	devices[d] = struct{}{}
	devicesMu.Unlock()
	propagateLogger(d, Logger())
}

func untrackDevice(d any) {
	devicesMu.Lock()
	delete(devices, d)
	devicesMu.Unlock()
}

func propagateLogger(d any, l *slog.Logger) {
	if ls, ok := d.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
