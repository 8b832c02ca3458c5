// Package sinks contains notify.Sink implementations for logging and metrics.
package sinks
