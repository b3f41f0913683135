// Package stores provides the run ledger: a SQLite database recording every
// hydration run, the outcome of each function and step, and the event
// timeline. The ledger backs run history and retrying the functions that
// failed last time.
//
// The database runs in WAL mode through the pure-Go modernc driver and is
// migrated with golang-migrate from embedded SQL files.
package stores
