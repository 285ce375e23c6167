// Package slogx abstracts structured logging across the stack.
//
// Every layer (mDNS, DNS-SD, the QUIC protocol endpoint, certificate
// validation) takes a [Logger] rather than reaching for the global
// [slog.Default]. This keeps components testable and lets embedders
// redirect diagnostics without touching library internals.
package slogx

import (
	"context"
	"log/slog"
)

// Logger abstracts the [*slog.Logger] behavior the stack depends on.
//
// The four levels used throughout this module follow one split: Info for
// lifecycle and protocol
// events (probe started, connection authenticated, state transition),
// Debug for per-message/per-packet detail, Warn for recoverable protocol
// violations (e.g. a peer's record too large to fit known-answer
// suppression), and Error for resource failures escalated to the
// embedder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// Default returns a no-op [Logger] that discards all output.
//
// Library convention: don't write to stdout/stderr unless the embedder
// explicitly configures a logger via [FromSlog].
func Default() Logger {
	return discard{}
}

// FromSlog adapts a [*slog.Logger] to [Logger].
func FromSlog(l *slog.Logger) Logger {
	if l == nil {
		return Default()
	}
	return slogAdapter{l: l}
}

type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

func (a slogAdapter) With(args ...any) Logger {
	return slogAdapter{l: a.l.With(args...)}
}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}
func (discard) With(...any) Logger   { return discard{} }

// ContextHandler wraps a [slog.Handler] and forwards every record to it
// unchanged, with the context passed through; it adds no context-scoped
// fields of its own.
type ContextHandler struct {
	slog.Handler
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.Handler.Handle(ctx, r)
}
