package repo

import "errors"

// Ошибки репозиториев.
var (
	// ErrNotFound — workflow или execution не найден.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState — execution не в ожидаемом статусе
	// (например, уже захвачен другим worker'ом).
	ErrInvalidState = errors.New("invalid state")
)
