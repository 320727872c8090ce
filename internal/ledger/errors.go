package ledger

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("ledger: not found")

// ErrNotPaid is returned when a refund targets a participant without a paid deposit.
var ErrNotPaid = errors.New("ledger: deposit not paid")

// mapNoRows turns pgx.ErrNoRows into ErrNotFound and keeps other errors intact.
func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
