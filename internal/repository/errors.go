// Package repository holds the MySQL read contracts of the catalog. The
// sentinel errors below let the service layer tell a missing row from a
// database failure without importing database/sql.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist. Services
// translate it into their own not-found failure.
var ErrNotFound = errors.New("not found")
