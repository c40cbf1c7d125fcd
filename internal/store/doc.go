// Package store provides SQLite-backed persistence for pass state, so that
// incremental and watch workflows resume from what the previous job saw.
//
// Tables:
//   - jobs: one row per job id with the number of completed passes
//   - known_files: the fingerprint each file had after the last pass
//   - write_history: every final write per pass
//   - runs: one row per driver run, kept across state resets
//
// Store implements passes.StateStore and passes.RunRecorder.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// All listings are ordered deterministically (name, then pass; runs by
// start time then id) so that CLI output and golden files are stable.
package store
