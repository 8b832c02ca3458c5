// Package notify announces crawl source and insight changes. Store mutations
// are turned into Events, batched by a non-blocking Hub on a background
// goroutine, and fanned out to pluggable sinks such as structured logs,
// Prometheus counters, or live subscribers streaming over SSE.
package notify
