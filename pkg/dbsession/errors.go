package dbsession

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrSessionBinding is returned when the tenant could not be bound to the
	// database session. The enclosing transaction is always aborted.
	ErrSessionBinding = errors.New("dbsession: failed to bind tenant to session")

	// ErrNotFound is the single answer for rows that do not exist and rows that
	// row policies hide.
	ErrNotFound = errors.New("dbsession: not found")
)

// NotFound converts pgx.ErrNoRows into ErrNotFound and returns any other error unchanged.
func NotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
