// Package stores keeps crate's run history.
//
// Each task run is recorded with its outcome, the steps the engine started,
// and every event it posted. The journal lives in a SQLite database (pure Go,
// via modernc.org/sqlite) with schema migrations embedded and applied through
// golang-migrate. Deleting or pruning a run removes its steps and events.
package stores
