// Package fsm implements the replicated znode tree of dKeeper as a Dragonboat
// IConcurrentStateMachine.
//
// Write operations (open and close session, create, delete, set data) are
// serialized into Command entries and proposed to the raft log. The log index
// of an entry is used as its zxid, so node versions and session ids are
// identical on every replica. Results are reported through sm.Result, Value
// holds a RetCode and Data the payload or the error message.
//
// Reads are expressed as Query values and answered by Lookup. Tree wide
// queries (stats, sessions) are cheap and usually served with stale reads.
//
// After each applied batch the Listener receives the changes (created,
// deleted, data changed, children changed), which the keeper uses to trigger
// watches.
//
// Snapshots copy the tree in PrepareSnapshot and gob encode the copy in
// SaveSnapshot, so updates are not blocked while the snapshot is written.
package fsm
