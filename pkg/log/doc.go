// Package log provides a SpanEventRecorder abstraction for attaching
// structured, leveled events to an active trace span. It is deliberately
// small: callers that aren't running a tracer can skip it entirely, while
// the engine (apply and reorg events) and the listener (reorg events)
// record onto a recorder passed to them through their
// WithSpanEventRecorder options.
package log
