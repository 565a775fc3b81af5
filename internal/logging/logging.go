// Package logging configures the process-wide slog logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"
)

// ParseLevel maps debug, info, warn and error to slog levels. Unknown values
// fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Setup builds a JSON logger writing to w, installs it as the slog default
// and returns it. When withSentry is set, error records are also sent to the
// current Sentry hub.
func Setup(level string, w io.Writer, withSentry bool) *slog.Logger {
	var h slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	if withSentry {
		h = &sentryHandler{next: h}
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// sentryHandler forwards error-level records to Sentry before passing them
// on.
type sentryHandler struct {
	next  slog.Handler
	attrs []slog.Attr
}

func (h *sentryHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *sentryHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		capture(r, h.attrs)
	}
	return h.next.Handle(ctx, r)
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &sentryHandler{next: h.next.WithAttrs(attrs), attrs: merged}
}

func (h *sentryHandler) WithGroup(name string) slog.Handler {
	return &sentryHandler{next: h.next.WithGroup(name), attrs: h.attrs}
}

func capture(r slog.Record, attrs []slog.Attr) {
	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		var cause error
		record := func(a slog.Attr) {
			if err, ok := a.Value.Any().(error); ok && cause == nil {
				cause = err
			}
			if a.Key == "component" {
				scope.SetTag("component", a.Value.String())
				return
			}
			scope.SetExtra(a.Key, a.Value.String())
		}
		for _, a := range attrs {
			record(a)
		}
		r.Attrs(func(a slog.Attr) bool {
			record(a)
			return true
		})

		if cause != nil {
			hub.CaptureException(fmt.Errorf("%s: %w", r.Message, cause))
			return
		}
		hub.CaptureMessage(r.Message)
	})
}
