// Package dispatch runs the periodic delivery loop: every tick it claims
// ready scheduled posts in global time order, renders the final content
// (footer, link buttons), delivers through the channel adapter with a
// degrading markup ladder, and commits the outcome.
//
// Ticks are single-flight: a tick still running when the next fires causes
// the next one to be deferred, never overlapped. Failures never escape a
// tick; a failed post is released back to pending and retried next tick.
package dispatch
