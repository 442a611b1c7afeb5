// Package schedule owns the request path of the posting pipeline: resolving
// operator time input, checking min-gap conflicts, and managing the pending
// queue (enqueue, list, withdraw).
//
// Delivery is not this package's job; see services/dispatch.
package schedule
