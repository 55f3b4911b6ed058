// Package repository implements the persistence layer over database/sql.
// Repositories return sentinels from the auth package (ErrDuplicateUser,
// ErrNotFound) where handlers need to distinguish outcomes; raw driver
// errors bubble up only for genuine server faults.
package repository
