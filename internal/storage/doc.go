// Package storage persists destinations, scheduled posts, and the delivered
// post history in a single sqlite database.
//
// Status model for scheduled posts:
//
//	pending -> sending -> sent        (dispatch claim + commit)
//	pending -> cancelled              (operator withdrawal)
//
// "sending" is an internal claim state: it is never ready, cannot be
// withdrawn, and still reserves its slot for conflict checking. Orphaned
// claims (crash mid-dispatch) are swept back to pending at startup.
package storage
