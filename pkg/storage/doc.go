// Package storage provides the Job Record Store.
//
// This package includes:
//   - GormStorage: the GORM-backed store that owns the jobs table (primary side)
//   - RegisterCommands: exposes GormStorage operations as forwarded commands
//   - ForwardedStorage: a core.Storage that sends every operation through a
//     forward.Writer, so workers on replicas write through the primary
//   - Open and pool configuration helpers for SQLite
//
// The Storage interface is defined in pkg/core.
package storage
