// Package syncengine reconciles the local worksheet store with the remote
// store under intermittent connectivity.
//
// # Model
//
// Records are compared by id only. Deletes are soft (tombstones) and
// conflicts are resolved last-write-wins on UpdatedAt. The engine never
// un-deletes a record: a remote tombstone causes a local hard delete, a
// local tombstone is uploaded, and a tombstone with no counterpart on the
// other side is left alone.
//
// # Flow
//
//   - Initialize binds the identity provider and the remote store. Sign-in
//     starts sync, sign-out stops it.
//   - StartSync runs one full reconciliation pass (see Reconcile) and then
//     opens a standing subscription whose snapshots are applied with
//     DiffSnapshot.
//   - SyncRecordToCloud pushes a single local write. Offline or signed-out
//     writes, and transient failures, go to a FIFO retry queue that is
//     drained when connectivity returns.
//   - An authentication failure tears down the subscription and emits one
//     auth-error. Later auth failures stay silent until the next sign-in.
//   - Remote changes are re-checked against the local copy right before
//     they are written, so a newer local edit is never replaced. Local
//     edits go through SaveLocal, which shares the apply lock.
//
// Consumers observe the engine through AddListener. Background failures are
// only reported as events; nothing is returned to a caller that is not
// waiting.
package syncengine
