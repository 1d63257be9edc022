// Package repository defines the storage contracts of the post, search and media
// services, independent of the backing store (PostgreSQL, memory, filesystem).
//
// Implementations live in internal/store/pg, internal/store/memory and
// internal/store/objects.
//
// Conventions:
//   - context is always the first parameter
//   - a missing record is ErrNotFound, never a nil value with a nil error
//   - projection writes report whether they changed anything so handlers stay idempotent
package repository
