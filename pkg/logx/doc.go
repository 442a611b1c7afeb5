// Package logx is a thin structured-logging layer over zerolog.
//
// It exposes a small Logger with functional Field helpers and a Service that
// owns sink configuration (console and/or file) and can swap levels and
// outputs at runtime via Apply. Loggers derived from a Service stay live
// across Apply calls. The zero Logger value is a safe no-op.
package logx
