// Package request persists audio-edit requests in SQLite and enforces their
// lifecycle state machine.
//
// The Store is the only mutable state shared across components; API handlers,
// the dispatch worker, and the status listener all mutate requests through its
// atomic per-id Update. Status moves strictly forward: submitted to
// processing, processing to completed or failed, and cancellation from any
// non-terminal state. Terminal requests never transition again; late payload
// events against them are dropped.
//
// Treat this package as the single source of truth for request semantics;
// when adding statuses or fields, update schema.sql and bump schemaVersion.
package request
