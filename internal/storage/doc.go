// Package storage is the per-machine ("local") persistence layer.
//
// It holds:
//   - the cached review state (review count + next review time)
//   - persisted alarm definitions, so alarms survive restarts and can be
//     cleared by another process (the options command)
//
// Two drivers exist: "sqlite" (default) and "file" (a JSON snapshot).
package storage
